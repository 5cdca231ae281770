package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/api/websocket"
)

// UpdateRunner performs a library update: ingesting the export and bringing
// the semantic index up to date. The progress callback reports per-record
// ingestion progress. The returned value becomes the task result.
type UpdateRunner func(ctx context.Context, full bool, progress func(done, total int)) (interface{}, error)

// UpdateHandler handles asynchronous library update requests.
type UpdateHandler struct {
	runner UpdateRunner
	tasks  *TaskManager
	hub    *websocket.Hub
}

// NewUpdateHandler creates a new update handler. The hub may be nil when no
// WebSocket clients are served.
func NewUpdateHandler(runner UpdateRunner, tasks *TaskManager, hub *websocket.Hub) *UpdateHandler {
	return &UpdateHandler{runner: runner, tasks: tasks, hub: hub}
}

// updateRequest is the POST /api/v1/update request body.
type updateRequest struct {
	// Full forces a complete rebuild of the semantic index instead of an
	// incremental update.
	Full bool `json:"full"`
}

// StartUpdate handles POST /api/v1/update. The update runs in the
// background; the response carries a task ID for polling.
func (h *UpdateHandler) StartUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}

	task, ok := h.tasks.Begin()
	if !ok {
		response.Conflict(w, fmt.Errorf("an update is already running"))
		return
	}

	go h.run(task.ID, req.Full)

	response.Accepted(w, map[string]string{"task_id": task.ID})
}

// GetUpdateStatus handles GET /api/v1/update/{taskID}.
func (h *UpdateHandler) GetUpdateStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, ok := h.tasks.Get(taskID)
	if !ok {
		response.NotFound(w, fmt.Errorf("unknown task %s", taskID))
		return
	}

	response.Success(w, task)
}

func (h *UpdateHandler) run(taskID string, full bool) {
	// The update outlives the HTTP request that started it.
	ctx := context.Background()

	h.broadcast(websocket.EventUpdateStarted, map[string]interface{}{
		"task_id": taskID,
		"full":    full,
	})

	result, err := h.runner(ctx, full, func(done, total int) {
		h.tasks.Progress(taskID, done, total)
		h.broadcast(websocket.EventUpdateProgress, map[string]interface{}{
			"task_id": taskID,
			"done":    done,
			"total":   total,
		})
	})

	if err != nil {
		h.tasks.Fail(taskID, err)
		h.broadcast(websocket.EventUpdateFailed, map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return
	}

	h.tasks.Complete(taskID, result)
	h.broadcast(websocket.EventUpdateCompleted, map[string]interface{}{
		"task_id": taskID,
		"result":  result,
	})
}

func (h *UpdateHandler) broadcast(eventType string, data interface{}) {
	if h.hub != nil {
		h.hub.BroadcastEvent(websocket.Event{Type: eventType, Data: data})
	}
}
