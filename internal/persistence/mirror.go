package persistence

/*
Mirror — write-behind зеркало состояния монитора во внешнем бэкенде.

Архитектурные гарантии:
- Non-blocking: горячий путь рекордера кладет запись в канал и уходит.
  Сетевые задержки бэкенда не влияют на учет задач.
- Batching: записи копятся и уходят пачками по таймеру или при достижении
  лимита; повторные апдейты одной сущности в пачке схлопываются (last-write-wins).
- Load Shedding: при переполнении буфера запись теряется с варнингом и
  инкрементом счетчика потерь — деградирует зеркало, а не монитор.
- Drain Pattern: Stop() закрывает вход и дожидается, пока воркер дочитает
  буфер и сделает финальный flush.
*/

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// mirrorBatchLimit — сколько записей копим до внеочередного flush.
const mirrorBatchLimit = 100

// DropCounter — счетчик потерянных записей (в проде prometheus counter).
type DropCounter interface {
	Add(float64)
}

// mirrorOp — одна мутация состояния. Заполнено ровно одно поле.
type mirrorOp struct {
	agent *domain.AgentStatus
	task  *domain.TaskMetrics
}

type Mirror struct {
	ch      chan mirrorOp
	backend Backend
	drops   DropCounter
	logger  *zap.Logger
	wg      sync.WaitGroup
	// «Железобетонная» защита: вдруг кто-то дернет Save* уже после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	flushInterval time.Duration
}

func NewMirror(backend Backend, bufferSize int, flushInterval time.Duration, drops DropCounter, logger *zap.Logger) *Mirror {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Mirror{
		ch:            make(chan mirrorOp, bufferSize),
		backend:       backend,
		drops:         drops,
		logger:        logger.With(zap.String("mod", "mirror")),
		flushInterval: flushInterval,
	}
}

func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (m *Mirror) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&m.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Save успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем канал (Drain Pattern): воркер вычитает остаток и сделает Final Flush
	m.logger.Info("stopping mirror: closing channel and flushing buffer...")
	close(m.ch)
	m.wg.Wait()
	m.logger.Info("mirror stopped gracefully")
}

// SaveAgent ставит снимок агента в очередь на дозапись. Никогда не блокирует.
func (m *Mirror) SaveAgent(a domain.AgentStatus) {
	m.enqueue(mirrorOp{agent: &a}, a.AgentID)
}

// SaveTask ставит снимок задачи в очередь на дозапись. Никогда не блокирует.
func (m *Mirror) SaveTask(t domain.TaskMetrics) {
	m.enqueue(mirrorOp{task: &t}, t.TaskID)
}

func (m *Mirror) enqueue(op mirrorOp, id string) {
	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&m.isClosed) == 1 {
		m.logger.Warn("mirror write dropped: mirror is stopping", zap.String("id", id))
		m.drops.Add(1)
		return
	}

	// Стратегия Load Shedding: переполненный буфер — теряем запись, не монитор
	select {
	case m.ch <- op:
	default:
		m.logger.Warn("mirror_buffer_overflow", zap.String("id", id))
		m.drops.Add(1)
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()

	agents := make(map[string]domain.AgentStatus, mirrorBatchLimit)
	tasks := make(map[string]domain.TaskMetrics, mirrorBatchLimit)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	flush := func() {
		// Используем Background: основной контекст к этому моменту может быть закрыт
		if len(agents) > 0 {
			batch := make([]domain.AgentStatus, 0, len(agents))
			for _, a := range agents {
				batch = append(batch, a)
			}
			if err := m.backend.SaveAgents(context.Background(), batch); err != nil {
				m.reportFlushErr("agents", len(batch), err)
			}
			clear(agents)
		}
		if len(tasks) > 0 {
			batch := make([]domain.TaskMetrics, 0, len(tasks))
			for _, t := range tasks {
				batch = append(batch, t)
			}
			if err := m.backend.SaveTasks(context.Background(), batch); err != nil {
				m.reportFlushErr("tasks", len(batch), err)
			}
			clear(tasks)
		}
	}

	for {
		select {
		case op, ok := <-m.ch:
			if !ok {
				// Канал закрыт в Stop() — самодостаточный сигнал: сначала
				// дочитали очередь, теперь финальный сброс и выход
				flush()
				m.logger.Info("mirror worker finished")
				return
			}
			if op.agent != nil {
				agents[op.agent.AgentID] = *op.agent
			}
			if op.task != nil {
				tasks[op.task.TaskID] = *op.task
			}
			if len(agents)+len(tasks) >= mirrorBatchLimit {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (m *Mirror) reportFlushErr(kind string, n int, err error) {
	m.drops.Add(float64(n))
	if errors.Is(err, domain.ErrPersistenceDown) {
		// Сам переход в деградацию уже залогирован предохранителем, не спамим
		return
	}
	m.logger.Error("mirror flush failed",
		zap.String("kind", kind),
		zap.Int("records", n),
		zap.Error(err))
}

// AlertPublisher адаптирует Backend под сигнальный интерфейс эскалации:
// трансляция нового алерта не должна блокировать его создание.
type AlertPublisher struct {
	backend Backend
	logger  *zap.Logger
}

func NewAlertPublisher(backend Backend, logger *zap.Logger) *AlertPublisher {
	return &AlertPublisher{backend: backend, logger: logger.Named("alert-signal")}
}

func (p *AlertPublisher) PublishAlert(a domain.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := p.backend.PublishAlert(ctx, a); err != nil && !errors.Is(err, domain.ErrPersistenceDown) {
			p.logger.Warn("alert publish failed", zap.String("alert_id", a.ID), zap.Error(err))
		}
	}()
}
