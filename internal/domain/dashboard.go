package domain

import "time"

// DashboardSnapshot — единый read-only контракт для UI и внешних потребителей.
// Собирается за один вызов; пустые коллекции всегда [] в JSON, не null.
type DashboardSnapshot struct {
	System         SystemMetrics   `json:"system"`          // Свежий системный срез
	Agents         []AgentStatus   `json:"agents"`          // В порядке регистрации
	RecentTasks    []TaskMetrics   `json:"recent_tasks"`    // Последние N по started_at, новые первыми
	Alerts         []Alert         `json:"alerts"`          // Только неподтвержденные
	MetricsHistory []SystemMetrics `json:"metrics_history"` // Хронологически, trailing-окно
	GeneratedAt    time.Time       `json:"generated_at"`
}
