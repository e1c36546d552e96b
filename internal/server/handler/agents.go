package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// AgentTracker Описываем, что нам нужно от рекордера
type AgentTracker interface {
	RegisterAgent(agentID, agentType string) (domain.AgentStatus, bool, error)
	GetAgent(agentID string) (domain.AgentStatus, bool)
	ListAgents() []domain.AgentStatus
	Heartbeat(agentID string, memoryMB, cpuPercent float64) (domain.AgentStatus, error)
}

type AgentHandler struct {
	tracker AgentTracker
	logger  *zap.Logger
}

func NewAgentHandler(tracker AgentTracker, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{tracker: tracker, logger: logger.Named("agent-api")}
}

type registerAgentRequest struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

// Register регистрирует воркера в реестре.
// POST /v1/agents
// Регистрация идемпотентна: повторный вызов отдает существующую запись
// со всеми накопленными счетчиками (201 при создании, 200 при повторе).
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	agent, created, err := h.tracker.RegisterAgent(req.AgentID, req.AgentType)
	if err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(agent)
}

// List возвращает всех агентов в порядке регистрации.
// GET /v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents := h.tracker.ListAgents()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}

// Get отдает текущее состояние одного агента.
// GET /v1/agents/{id}
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	agent, ok := h.tracker.GetAgent(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

type heartbeatRequest struct {
	MemoryUsageMB   float64 `json:"memory_usage_mb"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
}

// Heartbeat принимает самоотчет агента о ресурсах и продлевает ему жизнь.
// POST /v1/agents/{id}/heartbeat
func (h *AgentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agent, err := h.tracker.Heartbeat(agentID, req.MemoryUsageMB, req.CPUUsagePercent)
	if err != nil {
		http.Error(w, err.Error(), statusForErr(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}
