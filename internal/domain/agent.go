package domain

import "time"

type AgentState string

const (
	StateIdle    AgentState = "idle"    // Зарегистрирован, готов принять задачу
	StateRunning AgentState = "running" // Выполняет задачу
	StateError   AgentState = "error"   // Деградация воркера; штатный цикл задач сюда не переводит
	StateOffline AgentState = "offline" // Heartbeat устарел (агент потерян)
)

type AgentStatus struct {
	AgentID   string     `json:"agent_id"`   // Уникальный идентификатор (например, "crawler-01")
	AgentType string     `json:"agent_type"` // Класс воркера: crawler, summarizer, indexer...
	Status    AgentState `json:"status"`
	// ID задачи в работе. Пустая строка = агент свободен.
	CurrentTask string `json:"current_task,omitempty"`

	// Накопительные счетчики за все время жизни записи
	TasksCompleted  int64   `json:"tasks_completed"`
	TasksFailed     int64   `json:"tasks_failed"`
	AvgTaskDuration float64 `json:"avg_task_duration"` // Секунды, скользящее среднее по терминальным задачам
	ErrorRate       float64 `json:"error_rate"`        // failed / (completed + failed), пересчитывается целиком

	// Самоотчет агента (приходит с heartbeat)
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	MemoryUsageMB   float64   `json:"memory_usage_mb"`
	CPUUsagePercent float64   `json:"cpu_usage_percent"`

	RegisteredAt time.Time `json:"registered_at"` // Порядок регистрации = порядок выдачи в списках
}
