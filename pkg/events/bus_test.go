package events_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plugincraft/forge/pkg/events"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Progress Bus Suite")
}

var _ = Describe("Progress Bus", func() {
	var bus *events.Bus

	BeforeEach(func() {
		bus = events.NewBus()
	})

	It("delivers progress events only to subscribers of the matching session", func() {
		subA := bus.Subscribe("user-1", "sub-a", "session-1")
		subB := bus.Subscribe("user-1", "sub-b", "session-2")
		defer subA.Close()
		defer subB.Close()

		bus.PublishProgress(types.ProgressEvent{SessionID: "session-1", Phase: types.PhaseAnalysis, Progress: 15})

		Eventually(subA.Progress).Should(Receive(Equal(types.ProgressEvent{SessionID: "session-1", Phase: types.PhaseAnalysis, Progress: 15})))
		Consistently(subB.Progress, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("preserves publish order per session", func() {
		sub := bus.Subscribe("user-1", "sub-a", "session-1")
		defer sub.Close()

		for _, p := range []int{15, 25, 60, 75, 95, 100} {
			bus.PublishProgress(types.ProgressEvent{SessionID: "session-1", Progress: p})
		}

		var got []int
		for i := 0; i < 6; i++ {
			var ev types.ProgressEvent
			Eventually(sub.Progress).Should(Receive(&ev))
			got = append(got, ev.Progress)
		}
		Expect(got).To(Equal([]int{15, 25, 60, 75, 95, 100}))
	})

	It("fans task events out to every subscriber of a session", func() {
		subA := bus.Subscribe("user-1", "sub-a", "session-1")
		subB := bus.Subscribe("user-2", "sub-b", "session-1")
		defer subA.Close()
		defer subB.Close()

		bus.PublishTask(types.TaskEvent{SessionID: "session-1", TaskID: "t-1", Status: types.TaskCompleted})

		Eventually(subA.Task).Should(Receive())
		Eventually(subB.Task).Should(Receive())
	})

	It("closes all subscribers for a session without panicking on further publishes", func() {
		sub := bus.Subscribe("user-1", "sub-a", "session-1")

		bus.CloseSession("session-1")

		Eventually(sub.Progress).Should(BeClosed())
		Expect(func() { bus.PublishProgress(types.ProgressEvent{SessionID: "session-1"}) }).ToNot(Panic())
	})
})
