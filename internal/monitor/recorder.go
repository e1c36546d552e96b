package monitor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// AlertSink описывает возможности, которые рекордеру нужны от эскалации.
// Реализовывать его будет Evaluator.
type AlertSink interface {
	Raise(alertType domain.AlertType, severity domain.AlertSeverity, subject, message string)
}

// StateMirror — неблокирующее write-behind зеркало состояния.
// Реализация вправе терять записи при недоступности бэкенда, но не вправе
// тормозить или ронять горячий путь.
type StateMirror interface {
	SaveAgent(a domain.AgentStatus)
	SaveTask(t domain.TaskMetrics)
}

// TaskArchiver — неблокирующая архивация терминальных задач в долгое хранилище.
type TaskArchiver interface {
	Archive(t domain.TaskMetrics)
}

// Recorder — горячий путь учета жизненного цикла задач: валидация,
// атомарная мутация стора, метрики, зеркалирование, эскалация.
// Ошибки возвращает вызывающему, но сам никогда не паникует: мониторинг
// не имеет права ронять наблюдаемую систему.
type Recorder struct {
	store   *Store
	prices  *PriceTable
	alerts  AlertSink
	mirror  StateMirror
	archive TaskArchiver
	metrics *Metrics

	errorRateThreshold float64

	logger *zap.Logger
}

func NewRecorder(store *Store, prices *PriceTable, alerts AlertSink, mirror StateMirror, archive TaskArchiver, metrics *Metrics, errorRateThreshold float64, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:              store,
		prices:             prices,
		alerts:             alerts,
		mirror:             mirror,
		archive:            archive,
		metrics:            metrics,
		errorRateThreshold: errorRateThreshold,
		logger:             logger.Named("recorder"),
	}
}

// RegisterAgent — идемпотентная регистрация: повторный вызов возвращает
// существующую запись нетронутой (счетчики переживают рестарт агента).
func (r *Recorder) RegisterAgent(agentID, agentType string) (domain.AgentStatus, bool, error) {
	a, err := r.store.RegisterAgent(agentID, agentType, time.Now())
	if errors.Is(err, domain.ErrDuplicateAgent) {
		r.logger.Debug("duplicate agent registration ignored", zap.String("agent_id", agentID))
		return a, false, nil
	}
	if err != nil {
		return domain.AgentStatus{}, false, err
	}
	r.mirror.SaveAgent(a)
	return a, true, nil
}

func (r *Recorder) GetAgent(agentID string) (domain.AgentStatus, bool) {
	return r.store.GetAgent(agentID)
}

func (r *Recorder) ListAgents() []domain.AgentStatus {
	return r.store.ListAgents()
}

// EnqueueTask регистрирует задачу в очереди до того, как агент ее взял.
func (r *Recorder) EnqueueTask(taskID, agentID, taskType string) (domain.TaskMetrics, error) {
	t, err := r.store.EnqueueTask(taskID, agentID, taskType, time.Now())
	if err != nil {
		r.logger.Warn("enqueue rejected",
			zap.String("task_id", taskID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return domain.TaskMetrics{}, err
	}
	r.mirror.SaveTask(t)
	r.logger.Debug("task enqueued", zap.String("task_id", taskID), zap.String("agent_id", agentID))
	return t, nil
}

// StartTask фиксирует взятие задачи агентом.
func (r *Recorder) StartTask(taskID, agentID, taskType string) (domain.TaskMetrics, error) {
	t, agent, err := r.store.StartTask(taskID, agentID, taskType, time.Now())
	if err != nil {
		r.logger.Warn("task start rejected",
			zap.String("task_id", taskID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		return domain.TaskMetrics{}, err
	}

	r.metrics.TasksStarted.WithLabelValues(agent.AgentType).Inc()
	r.mirror.SaveTask(t)
	r.mirror.SaveAgent(agent)
	r.logger.Debug("task started",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID),
		zap.String("task_type", t.TaskType))
	return t, nil
}

// CompleteTask фиксирует успешное завершение: длительность по wall-clock,
// стоимость по статическому прайсу модели.
func (r *Recorder) CompleteTask(taskID string, tokensUsed int64, model string) error {
	cost, known := r.prices.Cost(model, tokensUsed)
	if !known && model != "" {
		r.logger.Warn("model missing from price table, cost recorded as zero",
			zap.String("task_id", taskID),
			zap.String("model", model))
	}

	t, agent, err := r.store.FinishTask(taskID, domain.TaskCompleted, tokensUsed, model, cost, "", time.Now())
	if err != nil {
		r.logger.Warn("task completion dropped", zap.String("task_id", taskID), zap.Error(err))
		return err
	}

	r.metrics.TasksCompleted.WithLabelValues(agent.AgentType).Inc()
	r.metrics.TaskDuration.WithLabelValues(t.TaskType, string(t.Status)).Observe(t.DurationSeconds)
	if model != "" {
		r.metrics.TokensConsumed.WithLabelValues(model).Add(float64(tokensUsed))
		r.metrics.CostUSD.WithLabelValues(model).Add(cost)
	}

	r.mirror.SaveTask(t)
	r.mirror.SaveAgent(agent)
	r.archive.Archive(t)

	r.logger.Debug("task completed",
		zap.String("task_id", taskID),
		zap.Float64("duration_s", t.DurationSeconds),
		zap.Int64("tokens", tokensUsed),
		zap.Float64("cost_usd", cost))
	return nil
}

// FailTask фиксирует сбой задачи и, при превышении порога error rate,
// поднимает warning-алерт по агенту.
func (r *Recorder) FailTask(taskID, errorMessage string) error {
	t, agent, err := r.store.FinishTask(taskID, domain.TaskFailed, 0, "", 0, errorMessage, time.Now())
	if err != nil {
		r.logger.Warn("task failure dropped", zap.String("task_id", taskID), zap.Error(err))
		return err
	}

	r.metrics.TasksFailed.WithLabelValues(agent.AgentType).Inc()
	r.metrics.TaskDuration.WithLabelValues(t.TaskType, string(t.Status)).Observe(t.DurationSeconds)

	r.mirror.SaveTask(t)
	r.mirror.SaveAgent(agent)
	r.archive.Archive(t)

	r.logger.Info("task failed",
		zap.String("task_id", taskID),
		zap.String("agent_id", t.AgentID),
		zap.String("error", errorMessage))

	if agent.AgentID != "" && agent.ErrorRate > r.errorRateThreshold {
		r.alerts.Raise(domain.AlertHighErrorRate, domain.SeverityWarning, agent.AgentID,
			fmt.Sprintf("agent %s error rate %.1f%% exceeds %.1f%% threshold",
				agent.AgentID, agent.ErrorRate*100, r.errorRateThreshold*100))
	}
	return nil
}

// Heartbeat принимает самоотчет агента.
func (r *Recorder) Heartbeat(agentID string, memoryMB, cpuPercent float64) (domain.AgentStatus, error) {
	agent, err := r.store.Heartbeat(agentID, memoryMB, cpuPercent, time.Now())
	if err != nil {
		r.logger.Warn("heartbeat from unknown agent", zap.String("agent_id", agentID))
		return domain.AgentStatus{}, err
	}
	r.mirror.SaveAgent(agent)
	return agent, nil
}

// SweepOffline помечает offline агентов с протухшим heartbeat.
// Зовется планировщиком, не семплером: сбор метрик остается чистым.
func (r *Recorder) SweepOffline(timeout time.Duration) int {
	stale := r.store.MarkStaleOffline(timeout, time.Now())
	for _, a := range stale {
		r.logger.Warn("agent went offline",
			zap.String("agent_id", a.AgentID),
			zap.Time("last_heartbeat", a.LastHeartbeat))
		r.mirror.SaveAgent(a)
	}
	return len(stale)
}

// Restore загружает выгруженное из бэкенда состояние и дозаписывает в зеркало
// все, что пришлось примирить после рестарта.
func (r *Recorder) Restore(agents []domain.AgentStatus, tasks []domain.TaskMetrics) {
	staleTasks, freedAgents := r.store.RestoreState(agents, tasks, time.Now())
	for _, t := range staleTasks {
		r.logger.Warn("reconciled task that was running before restart", zap.String("task_id", t.TaskID))
		r.mirror.SaveTask(t)
		r.archive.Archive(t)
	}
	for _, a := range freedAgents {
		r.mirror.SaveAgent(a)
	}
}
