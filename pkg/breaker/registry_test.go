package breaker_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/breaker"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func TestBreaker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Circuit Breaker Registry Suite")
}

var _ = Describe("Circuit Breaker Registry", func() {
	var (
		logger   *logrus.Logger
		registry *breaker.Registry
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		registry = breaker.NewRegistry(5, 30*time.Millisecond, logger)
	})

	// Property 4: Breaker monotonicity.
	It("opens after the failure threshold is reached and stays open until the timeout elapses", func() {
		for i := 0; i < 5; i++ {
			Expect(registry.Allow("classify_intent")).To(BeTrue())
			registry.RecordFailure("classify_intent")
		}

		Expect(registry.Allow("classify_intent")).To(BeFalse())
		Expect(registry.State("classify_intent").State).To(Equal(types.BreakerOpen))

		time.Sleep(40 * time.Millisecond)

		Expect(registry.Allow("classify_intent")).To(BeTrue())
		Expect(registry.State("classify_intent").State).To(Equal(types.BreakerHalfOpen))
	})

	It("closes again after a success in half-open state", func() {
		for i := 0; i < 5; i++ {
			Expect(registry.Allow("compile")).To(BeTrue())
			registry.RecordFailure("compile")
		}
		time.Sleep(40 * time.Millisecond)

		Expect(registry.Allow("compile")).To(BeTrue())
		registry.RecordSuccess("compile")

		Expect(registry.State("compile").State).To(Equal(types.BreakerClosed))
	})

	It("reopens on any failure seen while half-open", func() {
		for i := 0; i < 5; i++ {
			Expect(registry.Allow("refine_prompt")).To(BeTrue())
			registry.RecordFailure("refine_prompt")
		}
		time.Sleep(40 * time.Millisecond)

		Expect(registry.Allow("refine_prompt")).To(BeTrue())
		registry.RecordFailure("refine_prompt")

		Expect(registry.State("refine_prompt").State).To(Equal(types.BreakerOpen))
	})

	It("tracks independent state per operation", func() {
		for i := 0; i < 5; i++ {
			Expect(registry.Allow("op-a")).To(BeTrue())
			registry.RecordFailure("op-a")
		}
		Expect(registry.State("op-a").State).To(Equal(types.BreakerOpen))
		Expect(registry.State("op-b").State).To(Equal(types.BreakerClosed))
	})

	It("keeps a healthy operation closed under interleaved success", func() {
		for i := 0; i < 10; i++ {
			Expect(registry.Allow("extract_requirements")).To(BeTrue())
			if i%3 == 0 {
				registry.RecordFailure("extract_requirements")
			} else {
				registry.RecordSuccess("extract_requirements")
			}
		}
		Expect(registry.State("extract_requirements").State).To(Equal(types.BreakerClosed))
	})
})
