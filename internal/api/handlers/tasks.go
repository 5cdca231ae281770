package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task tracks one asynchronous library update.
type Task struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Done       int         `json:"done"`
	Total      int         `json:"total"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
}

// TaskManager tracks update tasks by ID. At most one task runs at a time;
// finished tasks stay queryable until the next one starts.
type TaskManager struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTaskManager creates an empty task manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[string]*Task)}
}

// Begin registers a new running task. It fails with ok=false when another
// task is still running.
func (tm *TaskManager) Begin() (task *Task, ok bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for _, t := range tm.tasks {
		if t.Status == TaskRunning {
			return nil, false
		}
	}

	task = &Task{
		ID:        uuid.NewString(),
		Status:    TaskRunning,
		StartedAt: time.Now().UTC(),
	}
	tm.tasks[task.ID] = task
	return task, true
}

// Get returns a snapshot of a task by ID.
func (tm *TaskManager) Get(id string) (Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Progress updates a running task's counters.
func (tm *TaskManager) Progress(id string, done, total int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if task, ok := tm.tasks[id]; ok {
		task.Done = done
		task.Total = total
	}
}

// Complete marks a task finished with its result.
func (tm *TaskManager) Complete(id string, result interface{}) {
	tm.finish(id, TaskCompleted, result, "")
}

// Fail marks a task failed.
func (tm *TaskManager) Fail(id string, err error) {
	tm.finish(id, TaskFailed, nil, err.Error())
}

func (tm *TaskManager) finish(id, status string, result interface{}, errMsg string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.Status = status
	task.FinishedAt = &now
	task.Result = result
	task.Error = errMsg
}
