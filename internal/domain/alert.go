package domain

import "time"

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type AlertType string

const (
	AlertHighCPU       AlertType = "high_cpu"
	AlertHighMemory    AlertType = "high_memory"
	AlertQueueBacklog  AlertType = "queue_backlog"
	AlertSlowResponses AlertType = "slow_responses"
	AlertHighErrorRate AlertType = "high_error_rate" // Per-agent, Subject = agent_id
)

type Alert struct {
	ID       string        `json:"id"` // UUID
	Type     AlertType     `json:"type"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
	// Для per-agent алертов — agent_id, для системных пусто.
	// Участвует в ключе дедупликации (Type+Subject).
	Subject string `json:"subject,omitempty"`

	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"` // Односторонний переход false -> true
}
