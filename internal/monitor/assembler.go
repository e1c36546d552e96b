package monitor

import (
	"time"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Assembler собирает единый read-only срез для дашборда из стора, семплера
// и журнала алертов. Собственного состояния нет — чистый join.
// Пустая платформа дает валидный нулевой срез, а не ошибку.
type Assembler struct {
	store     *Store
	sampler   *Sampler
	evaluator *Evaluator

	recentLimit  int
	historyHours int
}

func NewAssembler(store *Store, sampler *Sampler, evaluator *Evaluator, recentLimit, historyHours int) *Assembler {
	return &Assembler{
		store:        store,
		sampler:      sampler,
		evaluator:    evaluator,
		recentLimit:  recentLimit,
		historyHours: historyHours,
	}
}

func (a *Assembler) Assemble() domain.DashboardSnapshot {
	system, ok := a.sampler.Latest()
	if !ok {
		// До первого тика семплера: все нули, но форма контракта полная
		system = domain.SystemMetrics{Timestamp: time.Now().UTC()}
	}

	return domain.DashboardSnapshot{
		System:         system,
		Agents:         a.store.ListAgents(),
		RecentTasks:    a.store.RecentTasks(a.recentLimit),
		Alerts:         a.evaluator.Alerts(true),
		MetricsHistory: a.sampler.History(a.historyHours),
		GeneratedAt:    time.Now().UTC(),
	}
}
