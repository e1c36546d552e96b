package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// TaskTracker Описываем, что нам нужно от рекордера
type TaskTracker interface {
	EnqueueTask(taskID, agentID, taskType string) (domain.TaskMetrics, error)
	StartTask(taskID, agentID, taskType string) (domain.TaskMetrics, error)
	CompleteTask(taskID string, tokensUsed int64, model string) error
	FailTask(taskID, errorMessage string) error
}

type TaskHandler struct {
	tracker TaskTracker
	logger  *zap.Logger
}

func NewTaskHandler(tracker TaskTracker, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tracker: tracker, logger: logger.Named("task-api")}
}

type enqueueTaskRequest struct {
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id"`
	TaskType string `json:"task_type"`
}

// Enqueue ставит задачу в очередь (pending) до взятия агентом.
// POST /v1/tasks
func (h *TaskHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" || req.AgentID == "" {
		http.Error(w, "task_id and agent_id are required", http.StatusBadRequest)
		return
	}

	task, err := h.tracker.EnqueueTask(req.TaskID, req.AgentID, req.TaskType)
	if err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

type startTaskRequest struct {
	AgentID  string `json:"agent_id"`
	TaskType string `json:"task_type"`
}

// Start фиксирует взятие задачи агентом: pending-задача промоутится в
// running, незнакомый task_id стартует "с колес".
// POST /v1/tasks/{id}/start
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	task, err := h.tracker.StartTask(taskID, req.AgentID, req.TaskType)
	if err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

type completeTaskRequest struct {
	TokensUsed int64  `json:"tokens_used"`
	Model      string `json:"model"`
}

// Complete — успешный терминальный переход с учетом токенов и стоимости.
// POST /v1/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req completeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.tracker.CompleteTask(taskID, req.TokensUsed, req.Model); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type failTaskRequest struct {
	ErrorMessage string `json:"error_message"`
}

// Fail — терминальный переход со сбоем.
// POST /v1/tasks/{id}/fail
func (h *TaskHandler) Fail(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req failTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.tracker.FailTask(taskID, req.ErrorMessage); err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
