package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
)

// opTimeout — потолок на любую операцию с Redis. Зеркало обслуживает
// горячий путь мониторинга, долго ждать сеть оно не имеет права.
const opTimeout = 2 * time.Second

// RedisBackend хранит агентов и задачи в двух hash-структурах
// (поле = id, значение = JSON) и транслирует алерты через Pub/Sub.
//
// Все вызовы идут через Circuit Breaker: когда Redis падает, предохранитель
// открывается, операции мгновенно возвращают domain.ErrPersistenceDown, и
// монитор спокойно живет в памяти. Переходы состояния логируются один раз
// на смену, а не на каждый вызов (Fail-Safe деградация без спама в логах).
type RedisBackend struct {
	rdb    *redis.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewRedisBackend(rdb *redis.Client, logger *zap.Logger) *RedisBackend {
	scoped := logger.Named("redis-mirror")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pulse-redis",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (перестаем дергать Redis)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				scoped.Warn("persistence degraded to memory-only mode",
					zap.String("from", from.String()))
			case gobreaker.StateClosed:
				scoped.Info("persistence backend recovered",
					zap.String("from", from.String()))
			default:
				scoped.Info("persistence breaker half-open, probing backend")
			}
		},
	})

	return &RedisBackend{rdb: rdb, cb: cb, logger: scoped}
}

// execute прогоняет операцию через предохранитель и нормализует ошибку
// недоступности в domain.ErrPersistenceDown.
func (b *RedisBackend) execute(op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.ErrPersistenceDown
		}
		return err
	}
	return nil
}

func (b *RedisBackend) SaveAgents(ctx context.Context, agents []domain.AgentStatus) error {
	if len(agents) == 0 {
		return nil
	}
	return b.execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		pipe := b.rdb.Pipeline()
		for _, a := range agents {
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("marshal agent %s: %w", a.AgentID, err)
			}
			pipe.HSet(opCtx, infra.RedisKeyAgentsHash, a.AgentID, data)
		}
		_, err := pipe.Exec(opCtx)
		return err
	})
}

func (b *RedisBackend) SaveTasks(ctx context.Context, tasks []domain.TaskMetrics) error {
	if len(tasks) == 0 {
		return nil
	}
	return b.execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		pipe := b.rdb.Pipeline()
		for _, t := range tasks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal task %s: %w", t.TaskID, err)
			}
			pipe.HSet(opCtx, infra.RedisKeyTasksHash, t.TaskID, data)
		}
		_, err := pipe.Exec(opCtx)
		return err
	})
}

// LoadState вычитывает оба hash целиком. Битые записи пропускаются с
// warn-логом: одна испорченная строка не должна срывать рестарт.
func (b *RedisBackend) LoadState(ctx context.Context) ([]domain.AgentStatus, []domain.TaskMetrics, error) {
	var agents []domain.AgentStatus
	var tasks []domain.TaskMetrics

	err := b.execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		rawAgents, err := b.rdb.HGetAll(opCtx, infra.RedisKeyAgentsHash).Result()
		if err != nil {
			return err
		}
		for id, raw := range rawAgents {
			var a domain.AgentStatus
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				b.logger.Warn("skipping corrupted agent record", zap.String("agent_id", id), zap.Error(err))
				continue
			}
			agents = append(agents, a)
		}

		rawTasks, err := b.rdb.HGetAll(opCtx, infra.RedisKeyTasksHash).Result()
		if err != nil {
			return err
		}
		for id, raw := range rawTasks {
			var t domain.TaskMetrics
			if err := json.Unmarshal([]byte(raw), &t); err != nil {
				b.logger.Warn("skipping corrupted task record", zap.String("task_id", id), zap.Error(err))
				continue
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return agents, tasks, nil
}

func (b *RedisBackend) PublishAlert(ctx context.Context, a domain.Alert) error {
	return b.execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", a.ID, err)
		}
		return b.rdb.Publish(opCtx, infra.RedisChanAlerts, data).Err()
	})
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return b.rdb.Ping(opCtx).Err()
	})
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
