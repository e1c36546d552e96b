package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
)

// Scheduler крутит фоновый цикл монитора: тик семплинга (sweep офлайнеров,
// сбор среза, прогон порогов) и полуночный ретеншен журнала задач.
type Scheduler struct {
	store     *Store
	recorder  *Recorder
	sampler   *Sampler
	evaluator *Evaluator

	cron *cron.Cron
	cfg  infra.MonitorConfig

	logger *zap.Logger
}

func NewScheduler(store *Store, recorder *Recorder, sampler *Sampler, evaluator *Evaluator, cfg infra.MonitorConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		recorder:  recorder,
		sampler:   sampler,
		evaluator: evaluator,
		cron:      cron.New(cron.WithSeconds()),
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
	}
}

func (s *Scheduler) Start() error {
	tickSpec := fmt.Sprintf("@every %s", s.cfg.SampleInterval)
	if _, err := s.cron.AddFunc(tickSpec, s.runTick); err != nil {
		return fmt.Errorf("schedule sampling tick: %w", err)
	}

	// Полночь UTC — суточный рубеж для *_today счетчиков
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.runMidnight); err != nil {
		return fmt.Errorf("schedule midnight rollover: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("sample_interval", s.cfg.SampleInterval),
		zap.Duration("task_retention", s.cfg.TaskRetention))
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущего тика.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RunTickNow — немедленный тик вне расписания (первичный прогрев на старте).
func (s *Scheduler) RunTickNow() {
	s.runTick()
}

func (s *Scheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SampleInterval)
	defer cancel()

	// 1. Сначала sweep: срез должен видеть актуальные статусы
	if n := s.recorder.SweepOffline(s.cfg.HeartbeatTimeout); n > 0 {
		s.logger.Info("stale agents swept offline", zap.Int("count", n))
	}

	// 2. Срез состояния
	snap := s.sampler.Collect(ctx)

	// 3. Пороги — ровно один прогон на тик
	s.evaluator.Evaluate(snap)
}

func (s *Scheduler) runMidnight() {
	cutoff := time.Now().Add(-s.cfg.TaskRetention)
	removed := s.store.PruneTasks(cutoff)
	s.logger.Info("daily rollover",
		zap.Int("tasks_pruned", removed),
		zap.Time("retention_cutoff", cutoff))
}
