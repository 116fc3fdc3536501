package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/events"
	"github.com/plugincraft/forge/pkg/scheduler"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func TestScheduler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Agent/Task Scheduler Suite")
}

var _ = Describe("Scheduler", func() {
	var (
		logger *logrus.Logger
		bus    *events.Bus
		sched  *scheduler.Scheduler
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		bus = events.NewBus()
		sched = scheduler.NewScheduler(logger, bus)
	})

	It("selects the only capable agent for a task type", func() {
		generator := scheduler.NewAgent("generator", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(generator)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)

		var usedAgent string
		err := sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, agent *types.Agent) (interface{}, error) {
			usedAgent = agent.ID
			return "ok", nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(usedAgent).To(Equal(generator.ID))
		Expect(task.Status).To(Equal(types.TaskCompleted))
	})

	It("prefers the higher-scoring agent between two capable candidates", func() {
		weak := scheduler.NewAgent("weak", types.RoleSpecialist, "compilation")
		weak.Performance = types.AgentPerformance{SuccessRate: 0.4, AverageTimeMs: 5000, TotalTasks: 10, Successes: 4, Errors: 6}
		strong := scheduler.NewAgent("strong", types.RoleSpecialist, "compilation")
		strong.Performance = types.AgentPerformance{SuccessRate: 0.95, AverageTimeMs: 500, TotalTasks: 10, Successes: 9, Errors: 1}

		sched.RegisterAgent(weak)
		sched.RegisterAgent(strong)

		task := scheduler.NewTask(types.TaskCompilation, types.PriorityMedium, "compile_plugin", nil)

		var usedAgent string
		_ = sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, agent *types.Agent) (interface{}, error) {
			usedAgent = agent.ID
			return nil, nil
		})

		Expect(usedAgent).To(Equal(strong.ID))
	})

	It("falls back to a generalist when no specialist capability matches, for high priority tasks", func() {
		generalist := scheduler.NewAgent("generalist", types.RoleGeneralist, "general")
		sched.RegisterAgent(generalist)

		task := scheduler.NewTask(types.TaskRepair, types.PriorityHigh, "repair_code", nil)

		var usedAgent string
		err := sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, agent *types.Agent) (interface{}, error) {
			usedAgent = agent.ID
			return nil, nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(usedAgent).To(Equal(generalist.ID))
	})

	It("does not fall back to a generalist for a low priority task with no capable agent", func() {
		generalist := scheduler.NewAgent("generalist", types.RoleGeneralist, "general")
		sched.RegisterAgent(generalist)

		task := scheduler.NewTask(types.TaskRepair, types.PriorityLow, "repair_code", nil)

		err := sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
			return nil, nil
		})

		Expect(err).To(HaveOccurred())
		Expect(task.Status).To(Equal(types.TaskFailed))
	})

	It("does not mark an agent unavailable for a quick action", func() {
		agent := scheduler.NewAgent("classifier", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "classify_intent", nil)

		var sawAvailable bool
		_ = sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, a *types.Agent) (interface{}, error) {
			sawAvailable = a.Available
			return nil, nil
		})

		Expect(sawAvailable).To(BeTrue())
		Expect(agent.Available).To(BeTrue())
	})

	It("marks a non-quick agent unavailable during execution and available again afterward", func() {
		agent := scheduler.NewAgent("generator", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)

		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_ = sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
				<-release
				return nil, nil
			})
			close(done)
		}()

		Eventually(func() bool { return agent.Available }).Should(BeFalse())
		close(release)
		Eventually(done).Should(BeClosed())
		Expect(agent.Available).To(BeTrue())
		Expect(agent.CurrentTaskID).To(BeEmpty())
	})

	It("retries a failing task up to MaxRetries and then fails", func() {
		agent := scheduler.NewAgent("flaky", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)
		task.MaxRetries = 2

		var attempts int
		err := sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
			attempts++
			return nil, errors.New("boom")
		})

		Expect(err).To(HaveOccurred())
		Expect(attempts).To(Equal(3))
		Expect(task.RetryCount).To(Equal(3))
		Expect(task.Status).To(Equal(types.TaskFailed))
	})

	It("succeeds on a later attempt after earlier failures", func() {
		agent := scheduler.NewAgent("flaky", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)
		task.MaxRetries = 2

		var attempts int
		err := sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(task.Status).To(Equal(types.TaskCompleted))
	})

	It("updates running success rate and average latency after a successful attempt", func() {
		agent := scheduler.NewAgent("generator", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)
		_ = sched.Dispatch(context.Background(), "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		})

		Expect(agent.Performance.TotalTasks).To(Equal(1))
		Expect(agent.Performance.Successes).To(Equal(1))
		Expect(agent.Performance.SuccessRate).To(Equal(1.0))
	})

	It("stops retrying when the context is cancelled", func() {
		agent := scheduler.NewAgent("flaky", types.RoleSpecialist, "code_generation")
		sched.RegisterAgent(agent)

		task := scheduler.NewTask(types.TaskCreation, types.PriorityMedium, "generate_code", nil)
		task.MaxRetries = 5

		ctx, cancel := context.WithCancel(context.Background())
		var attempts int
		err := sched.Dispatch(ctx, "session-1", task, func(_ context.Context, _ *types.Task, _ *types.Agent) (interface{}, error) {
			attempts++
			if attempts == 1 {
				cancel()
			}
			return nil, errors.New("boom")
		})

		Expect(err).To(HaveOccurred())
		Expect(task.Status).To(Equal(types.TaskCancelled))
	})
})
