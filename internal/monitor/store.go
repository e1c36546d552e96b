package monitor

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Store — in-memory реестр агентов и журнал задач. Единственный владелец
// этого состояния в процессе; создается явно и передается через DI,
// никаких пакетных синглтонов.
//
// Обе таблицы под одним мьютексом: переход задачи и счетчики агента
// должны меняться атомарно, а дашборд — видеть согласованный срез.
type Store struct {
	mu sync.RWMutex

	agents map[string]*domain.AgentStatus
	order  []string // agent_id в порядке регистрации

	tasks map[string]*domain.TaskMetrics

	// Накопительные суммы за все время. Держим отдельно от журнала задач:
	// журнал чистится ретеншеном, суммы — нет.
	totalTokens int64
	totalCost   float64

	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		agents: make(map[string]*domain.AgentStatus),
		tasks:  make(map[string]*domain.TaskMetrics),
		logger: logger.Named("store"),
	}
}

// RegisterAgent создает запись агента в статусе idle.
// Повторная регистрация идемпотентна: запись не трогаем (счетчики агента
// переживают его рестарт), возвращаем текущее состояние и ErrDuplicateAgent —
// вызывающий сам решает, считать ли это ошибкой.
func (s *Store) RegisterAgent(agentID, agentType string, now time.Time) (domain.AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.agents[agentID]; ok {
		return *existing, domain.ErrDuplicateAgent
	}

	a := &domain.AgentStatus{
		AgentID:       agentID,
		AgentType:     agentType,
		Status:        domain.StateIdle,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	s.agents[agentID] = a
	s.order = append(s.order, agentID)

	s.logger.Info("agent registered",
		zap.String("agent_id", agentID),
		zap.String("agent_type", agentType))
	return *a, nil
}

// GetAgent возвращает копию записи агента.
func (s *Store) GetAgent(agentID string) (domain.AgentStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agentID]
	if !ok {
		return domain.AgentStatus{}, false
	}
	return *a, true
}

// ListAgents — все агенты в порядке регистрации. Всегда slice, не nil.
func (s *Store) ListAgents() []domain.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AgentStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.agents[id])
	}
	return out
}

// EnqueueTask ставит задачу в очередь (pending). Агент должен быть известен.
func (s *Store) EnqueueTask(taskID, agentID, taskType string, now time.Time) (domain.TaskMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return domain.TaskMetrics{}, domain.ErrUnknownAgent
	}
	if _, ok := s.tasks[taskID]; ok {
		return domain.TaskMetrics{}, domain.ErrDuplicateTask
	}

	t := &domain.TaskMetrics{
		TaskID:    taskID,
		AgentID:   agentID,
		TaskType:  taskType,
		Status:    domain.TaskPending,
		StartedAt: now, // Перепишется в момент реального старта
	}
	s.tasks[taskID] = t
	return *t, nil
}

// StartTask переводит задачу в running и занимает агента.
// Поддерживает два пути: промоушен ранее поставленной pending-задачи
// и старт "с колес" без enqueue.
func (s *Store) StartTask(taskID, agentID, taskType string, now time.Time) (domain.TaskMetrics, domain.AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return domain.TaskMetrics{}, domain.AgentStatus{}, domain.ErrUnknownAgent
	}
	if agent.CurrentTask != "" && agent.CurrentTask != taskID {
		return domain.TaskMetrics{}, domain.AgentStatus{}, domain.ErrAgentBusy
	}

	t, exists := s.tasks[taskID]
	switch {
	case !exists:
		t = &domain.TaskMetrics{TaskID: taskID, TaskType: taskType}
		s.tasks[taskID] = t
	case t.Status != domain.TaskPending:
		// running или терминальная — id уже занят
		return domain.TaskMetrics{}, domain.AgentStatus{}, domain.ErrDuplicateTask
	}

	t.AgentID = agentID
	if taskType != "" {
		t.TaskType = taskType
	}
	t.Status = domain.TaskRunning
	t.StartedAt = now // Время очереди в длительность не входит

	agent.Status = domain.StateRunning
	agent.CurrentTask = taskID
	agent.LastHeartbeat = now

	return *t, *agent, nil
}

// FinishTask выполняет единственный терминальный переход задачи и атомарно
// обновляет счетчики владеющего агента. Стоимость считает вызывающий слой
// (прайс — не забота хранилища).
func (s *Store) FinishTask(taskID string, outcome domain.TaskState, tokens int64, model string, cost float64, errMsg string, now time.Time) (domain.TaskMetrics, domain.AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.Status == domain.TaskPending {
		// pending = задача так и не стартовала, завершать нечего
		return domain.TaskMetrics{}, domain.AgentStatus{}, domain.ErrUnknownTask
	}
	if t.Status.Terminal() {
		return *t, domain.AgentStatus{}, domain.ErrTaskFinished
	}

	completed := now
	t.Status = outcome
	t.CompletedAt = &completed
	t.DurationSeconds = completed.Sub(t.StartedAt).Seconds()
	t.TokensUsed = tokens
	if model != "" {
		t.Model = model
	}
	t.CostUSD = cost
	t.ErrorMessage = errMsg

	s.totalTokens += tokens
	s.totalCost += cost

	agent, ok := s.agents[t.AgentID]
	if !ok {
		// Задача пережила агента — бывает только при ручной порче состояния
		s.logger.Warn("task finished for unknown agent", zap.String("task_id", taskID), zap.String("agent_id", t.AgentID))
		return *t, domain.AgentStatus{}, nil
	}

	// Скользящее среднее по терминальным задачам: n — счетчик ДО этой задачи
	n := float64(agent.TasksCompleted + agent.TasksFailed)
	agent.AvgTaskDuration = (agent.AvgTaskDuration*n + t.DurationSeconds) / (n + 1)

	if outcome == domain.TaskCompleted {
		agent.TasksCompleted++
	} else {
		agent.TasksFailed++
	}
	// Всегда пересчет целиком, никакой инкрементальной аппроксимации
	agent.ErrorRate = float64(agent.TasksFailed) / float64(agent.TasksCompleted+agent.TasksFailed)

	// Агент освобождается в обоих исходах
	if agent.CurrentTask == taskID {
		agent.CurrentTask = ""
		agent.Status = domain.StateIdle
	}

	return *t, *agent, nil
}

// Heartbeat обновляет самоотчет агента и оживляет offline-агента.
func (s *Store) Heartbeat(agentID string, memoryMB, cpuPercent float64, now time.Time) (domain.AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return domain.AgentStatus{}, domain.ErrUnknownAgent
	}

	agent.LastHeartbeat = now
	agent.MemoryUsageMB = memoryMB
	agent.CPUUsagePercent = cpuPercent
	if agent.Status == domain.StateOffline {
		agent.Status = domain.StateIdle
	}
	return *agent, nil
}

// MarkStaleOffline переводит в offline агентов с протухшим heartbeat.
// Возвращает копии затронутых записей (для зеркалирования и логов).
func (s *Store) MarkStaleOffline(timeout time.Duration, now time.Time) []domain.AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []domain.AgentStatus
	for _, id := range s.order {
		a := s.agents[id]
		if a.Status == domain.StateOffline {
			continue
		}
		if now.Sub(a.LastHeartbeat) > timeout {
			a.Status = domain.StateOffline
			stale = append(stale, *a)
		}
	}
	return stale
}

// RecentTasks — последние limit задач по started_at, новые первыми.
func (s *Store) RecentTasks(limit int) []domain.TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TaskMetrics, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].TaskID > out[j].TaskID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TaskTotals — агрегаты журнала для системного среза.
type TaskTotals struct {
	TotalAgents    int
	ActiveAgents   int
	AgentsByStatus map[domain.AgentState]int
	TasksInQueue   int
	CompletedToday int64
	FailedToday    int64
	AvgResponseMS  float64
	TotalTokens    int64
	TotalCost      float64
}

// Totals считает агрегаты одним проходом под RLock.
// "Сегодня" — с полуночи UTC.
func (s *Store) Totals(now time.Time) TaskTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tt := TaskTotals{
		TotalAgents:    len(s.agents),
		AgentsByStatus: make(map[domain.AgentState]int, 4),
		TotalTokens:    s.totalTokens,
		TotalCost:      s.totalCost,
	}
	for _, a := range s.agents {
		tt.AgentsByStatus[a.Status]++
		if a.Status == domain.StateRunning {
			tt.ActiveAgents++
		}
	}

	midnight := now.UTC().Truncate(24 * time.Hour)
	var durSumMS float64
	for _, t := range s.tasks {
		if t.Status == domain.TaskPending {
			tt.TasksInQueue++
			continue
		}
		if t.CompletedAt == nil || t.CompletedAt.UTC().Before(midnight) {
			continue
		}
		switch t.Status {
		case domain.TaskCompleted:
			tt.CompletedToday++
		case domain.TaskFailed:
			tt.FailedToday++
		}
		durSumMS += t.DurationSeconds * 1000
	}
	if n := tt.CompletedToday + tt.FailedToday; n > 0 {
		tt.AvgResponseMS = durSumMS / float64(n)
	}
	return tt
}

// PruneTasks убирает терминальные задачи старше cutoff. Возвращает число удаленных.
func (s *Store) PruneTasks(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// RestoreState загружает состояние, выгруженное из внешнего бэкенда, и
// примиряет его с реальностью: running-задачи умерли вместе с процессом,
// помечаем их failed без начисления штрафа агенту (рестарт монитора —
// не сбой агента). Возвращает измененные записи для дозаписи в зеркало.
func (s *Store) RestoreState(agents []domain.AgentStatus, tasks []domain.TaskMetrics, now time.Time) (staleTasks []domain.TaskMetrics, freedAgents []domain.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].RegisteredAt.Before(agents[j].RegisteredAt)
	})
	for i := range agents {
		a := agents[i]
		if _, ok := s.agents[a.AgentID]; ok {
			continue
		}
		s.agents[a.AgentID] = &a
		s.order = append(s.order, a.AgentID)
	}

	for i := range tasks {
		t := tasks[i]
		if _, ok := s.tasks[t.TaskID]; ok {
			continue
		}
		s.tasks[t.TaskID] = &t
		s.totalTokens += t.TokensUsed
		s.totalCost += t.CostUSD

		if t.Status != domain.TaskRunning {
			continue
		}
		// Примирение: процесс перезапускался, живых исполнителей у этой задачи нет
		completed := now
		t.Status = domain.TaskFailed
		t.CompletedAt = &completed
		t.DurationSeconds = completed.Sub(t.StartedAt).Seconds()
		t.ErrorMessage = "monitor restarted while task was in flight"
		staleTasks = append(staleTasks, t)
		s.tasks[t.TaskID] = &t

		if agent, ok := s.agents[t.AgentID]; ok && agent.CurrentTask == t.TaskID {
			agent.CurrentTask = ""
			if agent.Status == domain.StateRunning {
				agent.Status = domain.StateIdle
			}
			freedAgents = append(freedAgents, *agent)
		}
	}

	// Добиваем висячие ссылки: current_task без живой running-задачи
	for _, agent := range s.agents {
		if agent.CurrentTask == "" {
			continue
		}
		t, ok := s.tasks[agent.CurrentTask]
		if ok && t.Status == domain.TaskRunning {
			continue
		}
		agent.CurrentTask = ""
		if agent.Status == domain.StateRunning {
			agent.Status = domain.StateIdle
		}
		freedAgents = append(freedAgents, *agent)
	}

	s.logger.Info("state restored from backend",
		zap.Int("agents", len(agents)),
		zap.Int("tasks", len(tasks)),
		zap.Int("reconciled_stale", len(staleTasks)))
	return staleTasks, freedAgents
}
