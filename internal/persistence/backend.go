package persistence

import (
	"context"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Backend — внешнее хранилище зеркала состояния. Контракт мягкий:
// реализация обязана отвечать быстро (короткие таймауты) и возвращать
// domain.ErrPersistenceDown при недоступности, а не висеть.
type Backend interface {
	SaveAgents(ctx context.Context, agents []domain.AgentStatus) error
	SaveTasks(ctx context.Context, tasks []domain.TaskMetrics) error
	// LoadState выгружает все зеркалированное состояние для рестарта.
	LoadState(ctx context.Context) ([]domain.AgentStatus, []domain.TaskMetrics, error)
	// PublishAlert — fire-and-forget сигнал о новом алерте внешним подписчикам.
	PublishAlert(ctx context.Context, a domain.Alert) error
	Ping(ctx context.Context) error
	Close() error
}

// NoopBackend — персистентность выключена конфигом. Монитор полностью
// работоспособен в памяти, все операции — мгновенный успех.
type NoopBackend struct{}

func NewNoopBackend() *NoopBackend { return &NoopBackend{} }

func (*NoopBackend) SaveAgents(context.Context, []domain.AgentStatus) error { return nil }
func (*NoopBackend) SaveTasks(context.Context, []domain.TaskMetrics) error  { return nil }
func (*NoopBackend) LoadState(context.Context) ([]domain.AgentStatus, []domain.TaskMetrics, error) {
	return nil, nil, nil
}
func (*NoopBackend) PublishAlert(context.Context, domain.Alert) error { return nil }
func (*NoopBackend) Ping(context.Context) error                      { return nil }
func (*NoopBackend) Close() error                                    { return nil }
