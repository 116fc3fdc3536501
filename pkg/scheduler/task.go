package scheduler

import (
	"github.com/google/uuid"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// DefaultMaxRetries is applied by NewTask when the caller does not need a
// different bound; the scheduler itself enforces whatever MaxRetries the
// task carries.
const DefaultMaxRetries = 2

// NewTask builds a pending Task ready for Scheduler.Dispatch.
func NewTask(taskType types.TaskType, priority types.TaskPriority, action string, data map[string]interface{}) *types.Task {
	return &types.Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Priority:   priority,
		Action:     action,
		Data:       data,
		MaxRetries: DefaultMaxRetries,
		Status:     types.TaskPending,
	}
}
