package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// AlertLedger Описываем, что нам нужно от журнала алертов
type AlertLedger interface {
	Alerts(unackedOnly bool) []domain.Alert
	Acknowledge(id string) bool
}

type AlertHandler struct {
	ledger AlertLedger
	logger *zap.Logger
}

func NewAlertHandler(ledger AlertLedger, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{ledger: ledger, logger: logger.Named("alert-api")}
}

// List возвращает журнал алертов, новые первыми.
// GET /v1/alerts?unacknowledged_only=true
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	unackedOnly := r.URL.Query().Get("unacknowledged_only") == "true"

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ledger.Alerts(unackedOnly))
}

// Acknowledge — односторонний ack. Неизвестный id — no-op, тоже 204:
// оператор мог нажать по уже вытесненному ретеншеном алерту.
// POST /v1/alerts/{id}/ack
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.ledger.Acknowledge(id) {
		h.logger.Debug("ack for unknown alert", zap.String("alert_id", id))
	}
	w.WriteHeader(http.StatusNoContent)
}
