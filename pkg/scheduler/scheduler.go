// Package scheduler implements C6, the agent/task scheduler: capability-based
// agent selection, quick-task concurrency, retry with backoff, and the
// running performance statistics that feed future selections (spec.md §4.2).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/events"
	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/logging"
	"github.com/plugincraft/forge/pkg/shared/types"
)

// maxBackoff caps the inter-retry delay (spec.md §4.2).
const maxBackoff = 5 * time.Second

// Executor performs the actual work of a task once an agent has been
// assigned to it. The scheduler owns selection, retry and bookkeeping; the
// executor owns domain logic (calling into the LLM gateway, compiler, etc).
type Executor func(ctx context.Context, task *types.Task, agent *types.Agent) (interface{}, error)

// Scheduler assigns Tasks to registered Agents by capability and score,
// retrying on failure with exponential backoff, and keeps agents'
// performance statistics current.
type Scheduler struct {
	mu     sync.Mutex
	agents map[string]*types.Agent
	order  []string

	capabilities map[types.TaskType][]string
	logger       *logrus.Logger
	bus          *events.Bus
}

// NewScheduler builds an empty scheduler. bus may be nil, in which case
// task events are not published.
func NewScheduler(logger *logrus.Logger, bus *events.Bus) *Scheduler {
	return &Scheduler{
		agents:       make(map[string]*types.Agent),
		capabilities: Capabilities,
		logger:       logger,
		bus:          bus,
	}
}

// RegisterAgent adds an agent to the pool. Registration order is the
// tie-break for agents with equal selection scores.
func (s *Scheduler) RegisterAgent(agent *types.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; !exists {
		s.order = append(s.order, agent.ID)
	}
	s.agents[agent.ID] = agent
}

// Agents returns a snapshot of the registered agents, for status reporting.
func (s *Scheduler) Agents() []types.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Agent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.agents[id])
	}
	return out
}

// Dispatch selects an agent, runs exec, and retries on failure up to
// task.MaxRetries times with exponential backoff capped at maxBackoff.
// It blocks until the task reaches a terminal status or ctx is cancelled.
func (s *Scheduler) Dispatch(ctx context.Context, sessionID string, task *types.Task, exec Executor) error {
	for attempt := 0; ; attempt++ {
		agent, err := s.acquireAgent(task)
		if err != nil {
			task.Status = types.TaskFailed
			task.Error = err.Error()
			s.publishTask(sessionID, task)
			return err
		}

		task.Status = types.TaskProcessing
		task.AssignedAgentID = agent.ID
		task.StartTime = time.Now()
		s.publishTask(sessionID, task)

		result, execErr := exec(ctx, task, agent)
		elapsed := time.Since(task.StartTime)
		task.EndTime = task.StartTime.Add(elapsed)

		s.releaseAgent(agent, task, execErr == nil, elapsed)

		if execErr == nil {
			task.Status = types.TaskCompleted
			task.Result = result
			s.publishTask(sessionID, task)
			return nil
		}

		task.RetryCount++
		if ctx.Err() != nil {
			task.Status = types.TaskCancelled
			task.Error = ctx.Err().Error()
			s.publishTask(sessionID, task)
			return ctx.Err()
		}
		if task.RetryCount > task.MaxRetries {
			task.Status = types.TaskFailed
			task.Error = execErr.Error()
			s.publishTask(sessionID, task)
			return forgeerrors.FailedToWithDetails("dispatch", "scheduler", task.Action, execErr)
		}

		if s.logger != nil {
			s.logger.WithFields(logging.NewFields().Component("scheduler").Operation(task.Action).
				Custom("retry", task.RetryCount).Error(execErr).ToLogrus()).Warn("task attempt failed, retrying")
		}

		select {
		case <-ctx.Done():
			task.Status = types.TaskCancelled
			task.Error = ctx.Err().Error()
			s.publishTask(sessionID, task)
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
}

func backoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func (s *Scheduler) publishTask(sessionID string, task *types.Task) {
	if s.bus == nil {
		return
	}
	s.bus.PublishTask(types.TaskEvent{
		SessionID: sessionID,
		TaskID:    task.ID,
		Type:      task.Type,
		Action:    task.Action,
		Status:    task.Status,
		AgentID:   task.AssignedAgentID,
		Error:     task.Error,
		Result:    task.Result,
		Timestamp: time.Now(),
	})
}

// acquireAgent selects the best-scoring eligible agent and, unless the
// task is a quick action, marks it unavailable (invariant I2).
func (s *Scheduler) acquireAgent(task *types.Task) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := s.selectAgentLocked(task)
	if agent == nil {
		return nil, fmt.Errorf("no agent available for task type %q", task.Type)
	}
	if !task.IsQuick() {
		agent.Available = false
		agent.CurrentTaskID = task.ID
	}
	return agent, nil
}

func (s *Scheduler) selectAgentLocked(task *types.Task) *types.Agent {
	required := s.capabilities[task.Type]

	var candidates []*types.Agent
	for _, id := range s.order {
		a := s.agents[id]
		if !a.Available {
			continue
		}
		if hasAnyCapability(a, required) {
			candidates = append(candidates, a)
		}
	}

	if len(candidates) == 0 && (task.Priority == types.PriorityHigh || task.Priority == types.PriorityCritical) {
		for _, id := range s.order {
			a := s.agents[id]
			if !a.Available {
				continue
			}
			if isFallbackCandidate(a) {
				candidates = append(candidates, a)
			}
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		if sc := score(c); sc > bestScore {
			best, bestScore = c, sc
		}
	}
	return best
}

// releaseAgent frees a non-quick agent and folds the attempt's outcome into
// its running performance statistics (spec.md §4.2).
func (s *Scheduler) releaseAgent(agent *types.Agent, task *types.Task, success bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &agent.Performance
	p.TotalTasks++
	if success {
		p.Successes++
		n := float64(p.Successes)
		p.AverageTimeMs = p.AverageTimeMs*(n-1)/n + float64(elapsed.Milliseconds())/n
	} else {
		p.Errors++
	}
	n := float64(p.TotalTasks)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.SuccessRate = p.SuccessRate*(n-1)/n + outcome/n

	if !task.IsQuick() {
		agent.Available = true
		agent.CurrentTaskID = ""
	}
}
