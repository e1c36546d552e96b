package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
)

// AlertSignal — best-effort трансляция нового алерта внешним подписчикам
// (Redis Pub/Sub). Отказ сигнала не влияет на сам алерт.
type AlertSignal interface {
	PublishAlert(a domain.Alert)
}

// Evaluator сверяет системные срезы со статическими порогами и ведет
// журнал алертов: дедупликация, односторонний acknowledge, trailing-окно.
//
// Дедупликация: пока по ключу (type, subject) висит неподтвержденный алерт,
// новый не создается. Подтвержденный алерт повторную эскалацию не блокирует —
// оператор уже видел прошлый инцидент, новый пробой порога это новый факт.
type Evaluator struct {
	mu     sync.Mutex
	alerts []domain.Alert
	active map[string]string // ключ дедупликации -> id неподтвержденного алерта

	thresholds infra.ThresholdConfig
	retention  time.Duration

	signal  AlertSignal
	metrics *Metrics
	logger  *zap.Logger
}

func NewEvaluator(thresholds infra.ThresholdConfig, retention time.Duration, signal AlertSignal, metrics *Metrics, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		active:     make(map[string]string),
		thresholds: thresholds,
		retention:  retention,
		signal:     signal,
		metrics:    metrics,
		logger:     logger.Named("alerts"),
	}
}

// Evaluate прогоняет один срез через все пороги. Идемпотентна в пределах
// тика: два вызова подряд не дают двух неподтвержденных алертов одного типа.
// Возвращает созданные алерты.
func (e *Evaluator) Evaluate(snap domain.SystemMetrics) []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(time.Now())

	var raised []domain.Alert
	check := func(crossed bool, t domain.AlertType, msg string) {
		if !crossed {
			return
		}
		if a, ok := e.raiseLocked(t, domain.SeverityWarning, "", msg); ok {
			raised = append(raised, a)
		}
	}

	th := e.thresholds
	check(snap.CPUUsagePercent > th.CPUPercent, domain.AlertHighCPU,
		fmt.Sprintf("CPU usage %.1f%% exceeds %.1f%% threshold", snap.CPUUsagePercent, th.CPUPercent))
	check(snap.MemoryUsagePercent > th.MemoryPercent, domain.AlertHighMemory,
		fmt.Sprintf("memory usage %.1f%% exceeds %.1f%% threshold", snap.MemoryUsagePercent, th.MemoryPercent))
	check(snap.TasksInQueue > th.QueueDepth, domain.AlertQueueBacklog,
		fmt.Sprintf("task queue depth %d exceeds %d threshold", snap.TasksInQueue, th.QueueDepth))
	check(snap.AvgResponseTimeMS > th.AvgResponseMS, domain.AlertSlowResponses,
		fmt.Sprintf("average response time %.0fms exceeds %.0fms threshold", snap.AvgResponseTimeMS, th.AvgResponseMS))

	e.metrics.ActiveAlertGauge.Set(float64(e.unackedLocked()))
	return raised
}

// Raise создает алерт вне тика семплера (per-agent эскалации рекордера).
func (e *Evaluator) Raise(alertType domain.AlertType, severity domain.AlertSeverity, subject, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.raiseLocked(alertType, severity, subject, message)
	e.metrics.ActiveAlertGauge.Set(float64(e.unackedLocked()))
}

// raiseLocked — общий путь создания с дедупликацией. Вызывать под mu.
func (e *Evaluator) raiseLocked(alertType domain.AlertType, severity domain.AlertSeverity, subject, message string) (domain.Alert, bool) {
	key := string(alertType) + "|" + subject
	if _, exists := e.active[key]; exists {
		return domain.Alert{}, false
	}

	a := domain.Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}
	e.alerts = append(e.alerts, a)
	e.active[key] = a.ID

	e.logger.Warn("alert raised",
		zap.String("alert_id", a.ID),
		zap.String("type", string(alertType)),
		zap.String("subject", subject),
		zap.String("message", message))

	if e.signal != nil {
		e.signal.PublishAlert(a)
	}
	return a, true
}

// Acknowledge — односторонний переход. Неизвестный id — no-op, не ошибка.
func (e *Evaluator) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.alerts {
		if e.alerts[i].ID != id {
			continue
		}
		if !e.alerts[i].Acknowledged {
			e.alerts[i].Acknowledged = true
			delete(e.active, string(e.alerts[i].Type)+"|"+e.alerts[i].Subject)
			e.logger.Info("alert acknowledged", zap.String("alert_id", id))
			e.metrics.ActiveAlertGauge.Set(float64(e.unackedLocked()))
		}
		return true
	}
	e.logger.Debug("acknowledge for unknown alert id ignored", zap.String("alert_id", id))
	return false
}

// Alerts возвращает копию журнала, новые первыми. Всегда slice, не nil.
func (e *Evaluator) Alerts(unackedOnly bool) []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Alert, 0, len(e.alerts))
	for i := len(e.alerts) - 1; i >= 0; i-- {
		a := e.alerts[i]
		if unackedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

// pruneLocked вытесняет алерты старше retention-окна. Вызывать под mu.
func (e *Evaluator) pruneLocked(now time.Time) {
	cutoff := now.UTC().Add(-e.retention)
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.Timestamp.Before(cutoff) {
			key := string(a.Type) + "|" + a.Subject
			// Снимаем дедупликацию только если ключ держит именно этот алерт
			if id, ok := e.active[key]; ok && id == a.ID {
				delete(e.active, key)
			}
			continue
		}
		kept = append(kept, a)
	}
	e.alerts = kept
}

func (e *Evaluator) unackedLocked() int {
	n := 0
	for _, a := range e.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}
