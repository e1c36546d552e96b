package domain

import "time"

type TaskState string

const (
	TaskPending   TaskState = "pending"   // Поставлена в очередь, агент еще не взял
	TaskRunning   TaskState = "running"   // В работе
	TaskCompleted TaskState = "completed" // Терминальное состояние
	TaskFailed    TaskState = "failed"    // Терминальное состояние
)

// Terminal — задача закончена и больше не меняется.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type TaskMetrics struct {
	TaskID   string    `json:"task_id"`
	AgentID  string    `json:"agent_id"`
	TaskType string    `json:"task_type"`
	Status   TaskState `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"` // nil до терминального перехода

	DurationSeconds float64 `json:"duration_seconds"` // Считается в момент завершения, wall-clock
	TokensUsed      int64   `json:"tokens_used"`
	CostUSD         float64 `json:"cost_usd"` // Оценка по статическому прайсу модели
	Model           string  `json:"model,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}
