package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra"
)

// mirrorSpy пишет вызовы зеркала в память вместо Redis.
type mirrorSpy struct {
	mu     sync.Mutex
	agents []domain.AgentStatus
	tasks  []domain.TaskMetrics
}

func (m *mirrorSpy) SaveAgent(a domain.AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = append(m.agents, a)
}

func (m *mirrorSpy) SaveTask(t domain.TaskMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
}

// archiveSpy копит задачи, ушедшие в архив.
type archiveSpy struct {
	mu    sync.Mutex
	tasks []domain.TaskMetrics
}

func (a *archiveSpy) Archive(t domain.TaskMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, t)
}

func (a *archiveSpy) archived() []domain.TaskMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.TaskMetrics(nil), a.tasks...)
}

func testThresholds() infra.ThresholdConfig {
	return infra.ThresholdConfig{
		CPUPercent:    90,
		MemoryPercent: 85,
		QueueDepth:    100,
		AvgResponseMS: 5000,
		ErrorRate:     0.10,
	}
}

type recorderFixture struct {
	store     *Store
	recorder  *Recorder
	evaluator *Evaluator
	mirror    *mirrorSpy
	archive   *archiveSpy
}

func newRecorderFixture(t *testing.T, errorRateThreshold float64) *recorderFixture {
	t.Helper()

	logger := zap.NewNop()
	metrics := NewMetrics(nil)
	store := NewStore(logger)
	evaluator := NewEvaluator(testThresholds(), time.Hour, nil, metrics, logger)
	mirror := &mirrorSpy{}
	archive := &archiveSpy{}

	return &recorderFixture{
		store:     store,
		recorder:  NewRecorder(store, NewPriceTable(), evaluator, mirror, archive, metrics, errorRateThreshold, logger),
		evaluator: evaluator,
		mirror:    mirror,
		archive:   archive,
	}
}

func TestCompleteTaskFullCycle(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, created, err := f.recorder.RegisterAgent("crawler-01", "crawler")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = f.recorder.StartTask("t1", "crawler-01", "crawl")
	require.NoError(t, err)

	require.NoError(t, f.recorder.CompleteTask("t1", 1000, "gpt-4-turbo"))

	agent, ok := f.recorder.GetAgent("crawler-01")
	require.True(t, ok)
	assert.Equal(t, int64(1), agent.TasksCompleted)
	assert.Equal(t, int64(0), agent.TasksFailed)
	assert.Zero(t, agent.ErrorRate)
	assert.Equal(t, domain.StateIdle, agent.Status)
	assert.Empty(t, agent.CurrentTask)

	archived := f.archive.archived()
	require.Len(t, archived, 1)
	assert.Equal(t, domain.TaskCompleted, archived[0].Status)
	assert.Equal(t, int64(1000), archived[0].TokensUsed)
	assert.InDelta(t, 0.02, archived[0].CostUSD, 1e-9)

	assert.Empty(t, f.evaluator.Alerts(true), "successful run must not escalate")
}

func TestFailTaskRaisesErrorRateAlert(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, _, err := f.recorder.RegisterAgent("crawler-01", "crawler")
	require.NoError(t, err)

	_, err = f.recorder.StartTask("t1", "crawler-01", "crawl")
	require.NoError(t, err)
	require.NoError(t, f.recorder.CompleteTask("t1", 500, "gpt-4o"))

	_, err = f.recorder.StartTask("t2", "crawler-01", "crawl")
	require.NoError(t, err)
	require.NoError(t, f.recorder.FailTask("t2", "upstream timeout"))

	agent, _ := f.recorder.GetAgent("crawler-01")
	assert.Equal(t, int64(1), agent.TasksFailed)
	assert.InDelta(t, 0.5, agent.ErrorRate, 1e-9)
	assert.Equal(t, domain.StateIdle, agent.Status, "failure frees the agent")

	alerts := f.evaluator.Alerts(true)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertHighErrorRate, alerts[0].Type)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "crawler-01", alerts[0].Subject)
	assert.Contains(t, alerts[0].Message, "crawler-01")

	// Следующий сбой того же агента сдедуплицируется о висящий алерт
	_, err = f.recorder.StartTask("t3", "crawler-01", "crawl")
	require.NoError(t, err)
	require.NoError(t, f.recorder.FailTask("t3", "upstream timeout"))
	assert.Len(t, f.evaluator.Alerts(true), 1)
}

func TestFailTaskAtThresholdStaysQuiet(t *testing.T) {
	// Порог строгий: rate == threshold эскалации не дает
	f := newRecorderFixture(t, 0.5)

	_, _, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)

	_, err = f.recorder.StartTask("t1", "a1", "crawl")
	require.NoError(t, err)
	require.NoError(t, f.recorder.CompleteTask("t1", 0, ""))

	_, err = f.recorder.StartTask("t2", "a1", "crawl")
	require.NoError(t, err)
	require.NoError(t, f.recorder.FailTask("t2", "boom"))

	agent, _ := f.recorder.GetAgent("a1")
	assert.InDelta(t, 0.5, agent.ErrorRate, 1e-9)
	assert.Empty(t, f.evaluator.Alerts(true))
}

func TestCompleteUnknownTaskIsRejected(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	err := f.recorder.CompleteTask("ghost", 100, "gpt-4o")
	require.ErrorIs(t, err, domain.ErrUnknownTask)
	assert.Empty(t, f.archive.archived())
}

func TestCompleteTaskUnknownModelCostsZero(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, _, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)
	_, err = f.recorder.StartTask("t1", "a1", "crawl")
	require.NoError(t, err)

	require.NoError(t, f.recorder.CompleteTask("t1", 9999, "in-house-llm"))

	archived := f.archive.archived()
	require.Len(t, archived, 1)
	assert.Zero(t, archived[0].CostUSD)
	assert.Equal(t, int64(9999), archived[0].TokensUsed)
}

func TestRegisterAgentIdempotentAtRecorder(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	first, created, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)
	assert.True(t, created)

	// Дубликат — не ошибка API: возвращаем текущее состояние
	again, created, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.RegisteredAt, again.RegisteredAt)
}

func TestEnqueueThenStartKeepsQueueHonest(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, _, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)

	task, err := f.recorder.EnqueueTask("t1", "a1", "summarize")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)

	task, err = f.recorder.StartTask("t1", "a1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, task.Status)
	assert.Equal(t, "summarize", task.TaskType)
}

func TestHeartbeatMirrorsSelfReport(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, _, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)

	agent, err := f.recorder.Heartbeat("a1", 256, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 256.0, agent.MemoryUsageMB)
	assert.Equal(t, 12.5, agent.CPUUsagePercent)

	_, err = f.recorder.Heartbeat("ghost", 0, 0)
	require.ErrorIs(t, err, domain.ErrUnknownAgent)
}

func TestSweepOfflineMirrorsTransition(t *testing.T) {
	f := newRecorderFixture(t, 0.10)

	_, _, err := f.recorder.RegisterAgent("a1", "worker")
	require.NoError(t, err)

	// Нулевой таймаут: любой ненулевой возраст heartbeat считается протухшим
	n := f.recorder.SweepOffline(0)
	assert.Equal(t, 1, n)

	agent, _ := f.recorder.GetAgent("a1")
	assert.Equal(t, domain.StateOffline, agent.Status)

	f.mirror.mu.Lock()
	defer f.mirror.mu.Unlock()
	require.NotEmpty(t, f.mirror.agents)
	assert.Equal(t, domain.StateOffline, f.mirror.agents[len(f.mirror.agents)-1].Status)
}

func TestRestoreReconcilesAndArchives(t *testing.T) {
	f := newRecorderFixture(t, 0.10)
	before := time.Now().Add(-time.Hour)

	agents := []domain.AgentStatus{{
		AgentID: "a1", AgentType: "worker", Status: domain.StateRunning,
		CurrentTask: "t1", RegisteredAt: before, LastHeartbeat: before,
	}}
	tasks := []domain.TaskMetrics{{
		TaskID: "t1", AgentID: "a1", TaskType: "crawl",
		Status: domain.TaskRunning, StartedAt: before,
	}}

	f.recorder.Restore(agents, tasks)

	agent, ok := f.recorder.GetAgent("a1")
	require.True(t, ok)
	assert.Equal(t, domain.StateIdle, agent.Status)
	assert.Empty(t, agent.CurrentTask)

	archived := f.archive.archived()
	require.Len(t, archived, 1)
	assert.Equal(t, "t1", archived[0].TaskID)
	assert.Equal(t, domain.TaskFailed, archived[0].Status)
}
