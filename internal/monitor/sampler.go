package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Sampler снимает SystemMetrics-срезы и держит ограниченное trailing-окно
// истории. Сбор — чистая функция текущего состояния: единственные побочные
// эффекты — append в историю и вытеснение устаревших записей.
type Sampler struct {
	mu      sync.RWMutex
	history []domain.SystemMetrics

	store     *Store
	probe     Probe
	retention time.Duration
	metrics   *Metrics
	logger    *zap.Logger
}

func NewSampler(store *Store, probe Probe, retention time.Duration, metrics *Metrics, logger *zap.Logger) *Sampler {
	return &Sampler{
		store:     store,
		probe:     probe,
		retention: retention,
		metrics:   metrics,
		logger:    logger.Named("sampler"),
	}
}

// Collect строит один срез. Срез после создания неизменяем.
func (s *Sampler) Collect(ctx context.Context) domain.SystemMetrics {
	now := time.Now().UTC()
	usage := s.probe.Usage(ctx)
	tt := s.store.Totals(now)

	snap := domain.SystemMetrics{
		Timestamp:           now,
		TotalAgents:         tt.TotalAgents,
		ActiveAgents:        tt.ActiveAgents,
		TasksInQueue:        tt.TasksInQueue,
		TasksCompletedToday: tt.CompletedToday,
		TasksFailedToday:    tt.FailedToday,
		AvgResponseTimeMS:   tt.AvgResponseMS,
		TotalTokensUsed:     tt.TotalTokens,
		TotalCostUSD:        tt.TotalCost,
		CPUUsagePercent:     usage.CPUPercent,
		MemoryUsagePercent:  usage.MemoryPercent,
		DiskUsagePercent:    usage.DiskPercent,
	}

	s.mu.Lock()
	s.history = append(s.history, snap)
	s.pruneLocked(now)
	s.mu.Unlock()

	// Сатурационные гейджи обновляются здесь же, раз в тик
	for _, st := range []domain.AgentState{domain.StateIdle, domain.StateRunning, domain.StateError, domain.StateOffline} {
		s.metrics.AgentsGauge.WithLabelValues(string(st)).Set(float64(tt.AgentsByStatus[st]))
	}
	s.metrics.QueueDepthGauge.Set(float64(tt.TasksInQueue))

	s.logger.Debug("system metrics collected",
		zap.Float64("cpu", snap.CPUUsagePercent),
		zap.Float64("mem", snap.MemoryUsagePercent),
		zap.Int("active_agents", snap.ActiveAgents),
		zap.Int("queue", snap.TasksInQueue))
	return snap
}

// pruneLocked вытесняет срезы старше retention. Вызывать под mu.
func (s *Sampler) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	firstLive := 0
	for firstLive < len(s.history) && s.history[firstLive].Timestamp.Before(cutoff) {
		firstLive++
	}
	if firstLive == 0 {
		return
	}
	// Копируем хвост в новый слайс, чтобы не держать старый массив
	kept := make([]domain.SystemMetrics, len(s.history)-firstLive)
	copy(kept, s.history[firstLive:])
	s.history = kept
}

// History возвращает срезы не старше hours часов, хронологически.
// hours <= 0 — все retention-окно.
func (s *Sampler) History(hours int) []domain.SystemMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Time{}
	if hours > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	out := make([]domain.SystemMetrics, 0, len(s.history))
	for _, m := range s.history {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Latest — последний собранный срез, если он есть.
func (s *Sampler) Latest() (domain.SystemMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return domain.SystemMetrics{}, false
	}
	return s.history[len(s.history)-1], true
}
