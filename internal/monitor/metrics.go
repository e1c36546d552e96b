package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: жизненный цикл задач
	TasksStarted   *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec

	// Latency: длительность задач от старта до терминального перехода
	TaskDuration *prometheus.HistogramVec

	// Расход LLM-бюджета
	TokensConsumed *prometheus.CounterVec
	CostUSD        *prometheus.CounterVec

	// Saturation: текущее состояние платформы (обновляется на тике семплера)
	AgentsGauge      *prometheus.GaugeVec
	QueueDepthGauge  prometheus.Gauge
	ActiveAlertGauge prometheus.Gauge

	// Errors: отказы зеркала персистентности (события, не попавшие в Redis)
	PersistenceDrops prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TasksStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_tasks_started_total",
			Help: "Total number of task starts recorded.",
		}, []string{"agent_type"}),

		TasksCompleted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_tasks_completed_total",
			Help: "Total number of tasks finished successfully.",
		}, []string{"agent_type"}),

		TasksFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_tasks_failed_total",
			Help: "Total number of tasks finished with an error.",
		}, []string{"agent_type"}),

		TaskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_task_duration_seconds",
			Help:    "Histogram of task wall-clock durations.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"task_type", "status"}),

		TokensConsumed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_tokens_consumed_total",
			Help: "Total LLM tokens reported by finished tasks.",
		}, []string{"model"}),

		CostUSD: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_cost_usd_total",
			Help: "Estimated cumulative cost of finished tasks.",
		}, []string{"model"}),

		AgentsGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_agents",
			Help: "Registered agents by current status.",
		}, []string{"status"}),

		QueueDepthGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pulse_tasks_in_queue",
			Help: "Pending tasks awaiting pickup.",
		}),

		ActiveAlertGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pulse_alerts_unacknowledged",
			Help: "Alerts awaiting operator acknowledgement.",
		}),

		PersistenceDrops: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pulse_persistence_drops_total",
			Help: "State mirror writes lost due to backend unavailability or backpressure.",
		}),
	}
}
