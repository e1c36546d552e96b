package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// SnapshotSource Описываем, что нам нужно от ассемблера
type SnapshotSource interface {
	Assemble() domain.DashboardSnapshot
}

// HistorySource Описываем, что нам нужно от семплера
type HistorySource interface {
	History(hours int) []domain.SystemMetrics
}

type DashboardHandler struct {
	snapshots SnapshotSource
	history   HistorySource

	defaultHistoryHours int
}

func NewDashboardHandler(snapshots SnapshotSource, history HistorySource, defaultHistoryHours int) *DashboardHandler {
	if defaultHistoryHours <= 0 {
		defaultHistoryHours = 6
	}
	return &DashboardHandler{
		snapshots:           snapshots,
		history:             history,
		defaultHistoryHours: defaultHistoryHours,
	}
}

// GetDashboard отдает единый срез для UI: system + agents + recent_tasks +
// alerts + metrics_history. Пустая платформа — валидный нулевой срез.
// GET /api/v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Assemble()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetHistory отдает системные срезы за запрошенное окно, хронологически.
// GET /v1/metrics/history?hours=6
func (h *DashboardHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	hours := h.defaultHistoryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.history.History(hours))
}
