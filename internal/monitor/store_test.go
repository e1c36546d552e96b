package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(zap.NewNop())
}

func TestRegisterAgentIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	first, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, first.Status)
	assert.Equal(t, "worker", first.AgentType)

	// Накручиваем счетчики, чтобы проверить, что повтор их не обнуляет
	_, _, err = s.StartTask("t1", "a1", "crawl", now)
	require.NoError(t, err)
	_, _, err = s.FinishTask("t1", domain.TaskCompleted, 10, "", 0, "", now.Add(time.Second))
	require.NoError(t, err)

	again, err := s.RegisterAgent("a1", "worker", now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrDuplicateAgent)
	assert.Equal(t, int64(1), again.TasksCompleted, "re-registration must not reset counters")
}

func TestListAgentsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	for _, id := range []string{"c", "a", "b"} {
		_, err := s.RegisterAgent(id, "worker", now)
		require.NoError(t, err)
	}

	list := s.ListAgents()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].AgentID)
	assert.Equal(t, "a", list[1].AgentID)
	assert.Equal(t, "b", list[2].AgentID)
}

func TestListAgentsEmptyIsNotNil(t *testing.T) {
	s := newTestStore(t)
	assert.NotNil(t, s.ListAgents())
	assert.Empty(t, s.ListAgents())
}

func TestStartTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)

	task, agent, err := s.StartTask("t1", "a1", "crawl", now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, task.Status)
	assert.Equal(t, domain.StateRunning, agent.Status)
	assert.Equal(t, "t1", agent.CurrentTask)

	_, agent, err = s.FinishTask("t1", domain.TaskCompleted, 500, "gpt-4o", 0.001, "", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, agent.Status)
	assert.Empty(t, agent.CurrentTask)
	assert.Equal(t, int64(1), agent.TasksCompleted)
	assert.Equal(t, int64(0), agent.TasksFailed)
	assert.Zero(t, agent.ErrorRate)
}

func TestStartTaskUnknownAgent(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.StartTask("t1", "ghost", "crawl", time.Now())
	require.ErrorIs(t, err, domain.ErrUnknownAgent)
}

func TestStartTaskAgentBusy(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)
	_, _, err = s.StartTask("t1", "a1", "crawl", now)
	require.NoError(t, err)

	_, _, err = s.StartTask("t2", "a1", "crawl", now)
	require.ErrorIs(t, err, domain.ErrAgentBusy)
}

func TestEnqueuePromoteToRunning(t *testing.T) {
	s := newTestStore(t)
	enqueued := time.Now()
	started := enqueued.Add(30 * time.Second)

	_, err := s.RegisterAgent("a1", "worker", enqueued)
	require.NoError(t, err)

	task, err := s.EnqueueTask("t1", "a1", "crawl", enqueued)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, 1, s.Totals(enqueued).TasksInQueue)

	task, _, err = s.StartTask("t1", "a1", "", started)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, task.Status)
	assert.Equal(t, "crawl", task.TaskType, "task type survives promotion")
	assert.Equal(t, 0, s.Totals(started).TasksInQueue)

	// Время в очереди не входит в длительность
	done, _, err := s.FinishTask("t1", domain.TaskCompleted, 0, "", 0, "", started.Add(3*time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, done.DurationSeconds, 0.001)
}

func TestEnqueueDuplicateTask(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)
	_, err = s.EnqueueTask("t1", "a1", "crawl", now)
	require.NoError(t, err)

	_, err = s.EnqueueTask("t1", "a1", "crawl", now)
	require.ErrorIs(t, err, domain.ErrDuplicateTask)
}

func TestFinishTaskUnknown(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.FinishTask("ghost", domain.TaskCompleted, 0, "", 0, "", time.Now())
	require.ErrorIs(t, err, domain.ErrUnknownTask)
}

func TestFinishTaskPendingIsUnknown(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)
	_, err = s.EnqueueTask("t1", "a1", "crawl", now)
	require.NoError(t, err)

	// pending-задача не стартовала — завершать нечего
	_, _, err = s.FinishTask("t1", domain.TaskCompleted, 0, "", 0, "", now)
	require.ErrorIs(t, err, domain.ErrUnknownTask)
}

func TestFinishTaskExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)
	_, _, err = s.StartTask("t1", "a1", "crawl", now)
	require.NoError(t, err)
	_, _, err = s.FinishTask("t1", domain.TaskCompleted, 0, "", 0, "", now.Add(time.Second))
	require.NoError(t, err)

	_, _, err = s.FinishTask("t1", domain.TaskFailed, 0, "", 0, "boom", now.Add(2*time.Second))
	require.ErrorIs(t, err, domain.ErrTaskFinished)

	agent, ok := s.GetAgent("a1")
	require.True(t, ok)
	assert.Equal(t, int64(1), agent.TasksCompleted, "second terminal transition must not touch counters")
	assert.Equal(t, int64(0), agent.TasksFailed)
}

// Инвариант: error_rate всегда пересчитывается из счетчиков целиком,
// при любой последовательности завершений.
func TestErrorRateRecomputedFromCounters(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now)
	require.NoError(t, err)

	outcomes := []domain.TaskState{
		domain.TaskCompleted, domain.TaskFailed, domain.TaskFailed,
		domain.TaskCompleted, domain.TaskCompleted, domain.TaskFailed,
	}
	for i, outcome := range outcomes {
		taskID := string(rune('a' + i))
		_, _, err := s.StartTask(taskID, "a1", "crawl", now)
		require.NoError(t, err)
		_, agent, err := s.FinishTask(taskID, outcome, 0, "", 0, "", now.Add(time.Second))
		require.NoError(t, err)

		want := float64(agent.TasksFailed) / float64(agent.TasksCompleted+agent.TasksFailed)
		assert.InDelta(t, want, agent.ErrorRate, 1e-9, "after task %d", i)
	}

	final, _ := s.GetAgent("a1")
	assert.Equal(t, int64(3), final.TasksCompleted)
	assert.Equal(t, int64(3), final.TasksFailed)
	assert.InDelta(t, 0.5, final.ErrorRate, 1e-9)
}

// Инвариант: avg_task_duration — среднее длительностей всех терминальных
// задач, независимо от порядка и исходов.
func TestAvgDurationIsRunningMean(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	_, err := s.RegisterAgent("a1", "worker", base)
	require.NoError(t, err)

	durations := []time.Duration{1 * time.Second, 2 * time.Second, 6 * time.Second}
	outcomes := []domain.TaskState{domain.TaskCompleted, domain.TaskFailed, domain.TaskCompleted}

	var sum float64
	for i, d := range durations {
		taskID := string(rune('a' + i))
		started := base.Add(time.Duration(i) * time.Minute)
		_, _, err := s.StartTask(taskID, "a1", "crawl", started)
		require.NoError(t, err)
		_, agent, err := s.FinishTask(taskID, outcomes[i], 0, "", 0, "", started.Add(d))
		require.NoError(t, err)

		sum += d.Seconds()
		assert.InDelta(t, sum/float64(i+1), agent.AvgTaskDuration, 1e-9)
	}
}

func TestHeartbeatUpdatesAndRevives(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("a1", "worker", now.Add(-time.Hour))
	require.NoError(t, err)
	swept := s.MarkStaleOffline(5*time.Minute, now)
	require.Len(t, swept, 1)
	assert.Equal(t, domain.StateOffline, swept[0].Status)

	agent, err := s.Heartbeat("a1", 512, 34.5, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, agent.Status, "heartbeat revives offline agent")
	assert.Equal(t, 512.0, agent.MemoryUsageMB)
	assert.Equal(t, 34.5, agent.CPUUsagePercent)
	assert.Equal(t, now, agent.LastHeartbeat)
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Heartbeat("ghost", 0, 0, time.Now())
	require.ErrorIs(t, err, domain.ErrUnknownAgent)
}

func TestMarkStaleOfflineIsOneShot(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	_, err := s.RegisterAgent("old", "worker", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.RegisterAgent("fresh", "worker", now)
	require.NoError(t, err)

	swept := s.MarkStaleOffline(5*time.Minute, now)
	require.Len(t, swept, 1)
	assert.Equal(t, "old", swept[0].AgentID)

	// Повторный sweep уже offline агента не трогает
	assert.Empty(t, s.MarkStaleOffline(5*time.Minute, now))
}

func TestTotalsTodayBoundary(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	yesterday := now.Add(-36 * time.Hour)

	_, err := s.RegisterAgent("a1", "worker", yesterday)
	require.NoError(t, err)

	// Вчерашняя завершенная задача — в today-счетчики не попадает
	_, _, err = s.StartTask("old", "a1", "crawl", yesterday)
	require.NoError(t, err)
	_, _, err = s.FinishTask("old", domain.TaskCompleted, 100, "", 0.5, "", yesterday.Add(time.Second))
	require.NoError(t, err)

	_, _, err = s.StartTask("new", "a1", "crawl", now)
	require.NoError(t, err)
	_, _, err = s.FinishTask("new", domain.TaskFailed, 0, "", 0, "x", now.Add(time.Second))
	require.NoError(t, err)

	tt := s.Totals(now)
	assert.Equal(t, int64(0), tt.CompletedToday)
	assert.Equal(t, int64(1), tt.FailedToday)
	// Накопительные суммы ретроспективу сохраняют
	assert.Equal(t, int64(100), tt.TotalTokens)
	assert.InDelta(t, 0.5, tt.TotalCost, 1e-9)
}

func TestPruneTasksKeepsLive(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	old := now.Add(-72 * time.Hour)

	_, err := s.RegisterAgent("a1", "worker", old)
	require.NoError(t, err)

	_, _, err = s.StartTask("done-old", "a1", "crawl", old)
	require.NoError(t, err)
	_, _, err = s.FinishTask("done-old", domain.TaskCompleted, 0, "", 0, "", old.Add(time.Second))
	require.NoError(t, err)

	_, _, err = s.StartTask("running", "a1", "crawl", now)
	require.NoError(t, err)

	removed := s.PruneTasks(now.Add(-48 * time.Hour))
	assert.Equal(t, 1, removed)

	tasks := s.RecentTasks(0)
	require.Len(t, tasks, 1)
	assert.Equal(t, "running", tasks[0].TaskID)
}

func TestRecentTasksOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	_, err := s.RegisterAgent("a1", "worker", base)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		taskID := string(rune('a' + i))
		started := base.Add(time.Duration(i) * time.Minute)
		_, _, err := s.StartTask(taskID, "a1", "crawl", started)
		require.NoError(t, err)
		_, _, err = s.FinishTask(taskID, domain.TaskCompleted, 0, "", 0, "", started.Add(time.Second))
		require.NoError(t, err)
	}

	recent := s.RecentTasks(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].TaskID, "newest first")
	assert.Equal(t, "d", recent[1].TaskID)
	assert.Equal(t, "c", recent[2].TaskID)
}

func TestRestoreStateReconcilesRunning(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	before := now.Add(-10 * time.Minute)

	agents := []domain.AgentStatus{
		{
			AgentID: "a1", AgentType: "worker", Status: domain.StateRunning,
			CurrentTask: "t1", TasksCompleted: 7, TasksFailed: 1,
			RegisteredAt: before, LastHeartbeat: before,
		},
		{
			AgentID: "a2", AgentType: "worker", Status: domain.StateIdle,
			RegisteredAt: before.Add(time.Minute), LastHeartbeat: before,
		},
	}
	tasks := []domain.TaskMetrics{
		{TaskID: "t1", AgentID: "a1", TaskType: "crawl", Status: domain.TaskRunning, StartedAt: before},
		{TaskID: "t0", AgentID: "a1", TaskType: "crawl", Status: domain.TaskCompleted, StartedAt: before, TokensUsed: 50, CostUSD: 0.1},
	}

	stale, freed := s.RestoreState(agents, tasks, now)

	require.Len(t, stale, 1)
	assert.Equal(t, "t1", stale[0].TaskID)
	assert.Equal(t, domain.TaskFailed, stale[0].Status)
	assert.NotNil(t, stale[0].CompletedAt)

	require.Len(t, freed, 1)
	assert.Equal(t, "a1", freed[0].AgentID)
	assert.Equal(t, domain.StateIdle, freed[0].Status)
	assert.Empty(t, freed[0].CurrentTask)

	// Рестарт монитора — не сбой агента: счетчики не трогаем
	a1, ok := s.GetAgent("a1")
	require.True(t, ok)
	assert.Equal(t, int64(7), a1.TasksCompleted)
	assert.Equal(t, int64(1), a1.TasksFailed)

	// Порядок листинга — по RegisteredAt из бэкапа
	list := s.ListAgents()
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].AgentID)

	// Накопительные суммы восстановлены из журнала
	tt := s.Totals(now)
	assert.Equal(t, int64(50), tt.TotalTokens)
	assert.InDelta(t, 0.1, tt.TotalCost, 1e-9)
}
