package registry

import (
	"context"
	"fmt"
	"sync"
)

// TaskOutcome is what a TaskHandler reports back to the Executor.
type TaskOutcome struct {
	ResultData any
}

// ExecContext is the capability-scoped handle a TaskHandler receives. It
// carries the task's decoded parameters and a Heartbeat func that stamps
// the task row's heartbeat mid-execution.
type ExecContext struct {
	Ctx        context.Context
	TaskID     string
	JobID      string
	Stage      int
	TaskType   string
	Parameters map[string]any

	// Heartbeat stamps the task row's heartbeat column (the queue entry's
	// lease is not touched). The Executor also stamps it on a ticker while
	// the handler runs; either keeps the Janitor's heartbeat-lapse scan from
	// reclaiming a task that is still being worked.
	Heartbeat func()
}

// TaskHandler executes one task_type's business logic. Handlers must be
// side-effect safe under retries: the Executor may invoke a handler more
// than once for the same task_id after a crash or lease expiry.
type TaskHandler func(ec *ExecContext) (TaskOutcome, error)

// TaskRegistry is a concurrency-safe map of task_type -> TaskHandler.
type TaskRegistry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{handlers: make(map[string]TaskHandler)}
}

func (r *TaskRegistry) Register(taskType string, h TaskHandler) error {
	if taskType == "" {
		return fmt.Errorf("empty task_type")
	}
	if h == nil {
		return fmt.Errorf("nil handler for task_type=%s", taskType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("handler already registered for task_type=%s", taskType)
	}
	r.handlers[taskType] = h
	return nil
}

// Get retrieves the handler for task_type. A worker treats a miss as a
// contract violation: it means a task was enqueued for a type nothing in
// this process can execute.
func (r *TaskRegistry) Get(taskType string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}
