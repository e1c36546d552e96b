package domain

import "time"

// SystemMetrics — неизменяемый срез состояния платформы на момент Timestamp.
// История хранится как append-only окно, старые срезы вытесняются.
type SystemMetrics struct {
	Timestamp time.Time `json:"timestamp"`

	TotalAgents  int `json:"total_agents"`
	ActiveAgents int `json:"active_agents"`  // status == running
	TasksInQueue int `json:"tasks_in_queue"` // pending-задачи

	// Счетчики "за сегодня" — с полуночи UTC
	TasksCompletedToday int64   `json:"tasks_completed_today"`
	TasksFailedToday    int64   `json:"tasks_failed_today"`
	AvgResponseTimeMS   float64 `json:"avg_response_time_ms"` // Средняя длительность терминальных задач за сегодня

	// Накопительно за все время
	TotalTokensUsed int64   `json:"total_tokens_used"`
	TotalCostUSD    float64 `json:"total_cost_usd"`

	// Ресурсы хоста самого монитора
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	DiskUsagePercent   float64 `json:"disk_usage_percent"`
}

// ResourceUsage — сырой замер хоста (выход probe-слоя).
type ResourceUsage struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}
