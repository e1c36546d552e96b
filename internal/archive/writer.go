package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Storage определяет, куда физически уезжают архивные записи
type Storage interface {
	// WriteBatch сохраняет пачку задач за один раз
	WriteBatch(ctx context.Context, tasks []domain.TaskMetrics) error
}

// Writer — асинхронный батчер архивации терминальных задач.
// Тот же контур, что у зеркала состояния: неблокирующий вход с Load
// Shedding, пакетная запись по таймеру/лимиту, Drain Pattern на остановке.
// Отличие — Postgres дальше и дороже Redis, поэтому flush ходит с ретраями.
type Writer struct {
	ch     chan domain.TaskMetrics
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	batchSize     int
	flushInterval time.Duration
}

func NewWriter(repo Storage, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Writer{
		ch:            make(chan domain.TaskMetrics, batchSize*10),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "archive")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop закрывает вход и дожидается финального сброса буфера.
func (w *Writer) Stop() {
	atomic.StoreInt32(&w.isClosed, 1)
	time.Sleep(10 * time.Millisecond)

	w.logger.Info("stopping archive writer: flushing buffer...")
	close(w.ch)
	w.wg.Wait()
	w.logger.Info("archive writer stopped gracefully")
}

// Archive ставит терминальную задачу в очередь архивации. Не блокирует.
func (w *Writer) Archive(t domain.TaskMetrics) {
	if !t.Status.Terminal() {
		// Архив только для завершенных: живую задачу еще будет кому дописать
		return
	}
	if atomic.LoadInt32(&w.isClosed) == 1 {
		w.logger.Warn("archive record dropped: writer is stopping", zap.String("task_id", t.TaskID))
		return
	}

	select {
	case w.ch <- t:
	default:
		w.logger.Warn("archive_buffer_overflow", zap.String("task_id", t.TaskID))
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	batch := make([]domain.TaskMetrics, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст может быть уже закрыт
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)
		err := r.Do(func() error {
			return w.repo.WriteBatch(ctx, batch)
		})
		if err != nil {
			// Архив — best-effort: пачку теряем, монитор живет дальше
			w.logger.Error("archive flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case t, ok := <-w.ch:
			if !ok {
				flush()
				w.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, t)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Noop — архивация выключена конфигом.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Archive(domain.TaskMetrics) {}
