package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

type assemblerFixture struct {
	store     *Store
	sampler   *Sampler
	evaluator *Evaluator
	assembler *Assembler
}

func newAssemblerFixture(t *testing.T, probe Probe, recentLimit int) *assemblerFixture {
	t.Helper()

	logger := zap.NewNop()
	metrics := NewMetrics(nil)
	store := NewStore(logger)
	sampler := NewSampler(store, probe, 24*time.Hour, metrics, logger)
	evaluator := NewEvaluator(testThresholds(), time.Hour, nil, metrics, logger)

	return &assemblerFixture{
		store:     store,
		sampler:   sampler,
		evaluator: evaluator,
		assembler: NewAssembler(store, sampler, evaluator, recentLimit, 6),
	}
}

// Пустая платформа — валидный нулевой срез, а не ошибка и не null-поля.
func TestAssembleEmptyPlatform(t *testing.T) {
	f := newAssemblerFixture(t, &fakeProbe{}, 20)

	snap := f.assembler.Assemble()

	assert.NotNil(t, snap.Agents)
	assert.Empty(t, snap.Agents)
	assert.NotNil(t, snap.RecentTasks)
	assert.NotNil(t, snap.Alerts)
	assert.NotNil(t, snap.MetricsHistory)
	assert.False(t, snap.GeneratedAt.IsZero())
	assert.False(t, snap.System.Timestamp.IsZero(), "zero snapshot still carries a timestamp")
	assert.Zero(t, snap.System.TotalAgents)

	// Контракт JSON: пустые коллекции сериализуются как [], не null
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"agents":[]`)
	assert.Contains(t, string(raw), `"recent_tasks":[]`)
	assert.Contains(t, string(raw), `"alerts":[]`)
	assert.Contains(t, string(raw), `"metrics_history":[]`)
}

func TestAssembleJoinsAllSources(t *testing.T) {
	f := newAssemblerFixture(t, &fakeProbe{usage: domain.ResourceUsage{CPUPercent: 33}}, 20)
	now := time.Now()

	_, err := f.store.RegisterAgent("a1", "crawler", now)
	require.NoError(t, err)
	_, err = f.store.RegisterAgent("a2", "indexer", now)
	require.NoError(t, err)

	_, _, err = f.store.StartTask("t1", "a1", "crawl", now)
	require.NoError(t, err)
	_, _, err = f.store.FinishTask("t1", domain.TaskCompleted, 100, "gpt-4o", 0.001, "", now.Add(time.Second))
	require.NoError(t, err)

	f.evaluator.Raise(domain.AlertHighErrorRate, domain.SeverityWarning, "a1", "noisy")
	f.evaluator.Raise(domain.AlertHighCPU, domain.SeverityWarning, "", "hot")
	acked := f.evaluator.Alerts(true)[0]
	require.True(t, f.evaluator.Acknowledge(acked.ID))

	collected := f.sampler.Collect(context.Background())

	snap := f.assembler.Assemble()
	assert.Equal(t, collected, snap.System)
	require.Len(t, snap.Agents, 2)
	assert.Equal(t, "a1", snap.Agents[0].AgentID, "registration order")
	require.Len(t, snap.RecentTasks, 1)
	assert.Equal(t, "t1", snap.RecentTasks[0].TaskID)
	require.Len(t, snap.Alerts, 1, "dashboard carries only unacknowledged alerts")
	require.Len(t, snap.MetricsHistory, 1)
	assert.Equal(t, collected.Timestamp, snap.MetricsHistory[0].Timestamp)
}

func TestAssembleHonorsRecentLimit(t *testing.T) {
	f := newAssemblerFixture(t, &fakeProbe{}, 2)
	base := time.Now()

	_, err := f.store.RegisterAgent("a1", "worker", base)
	require.NoError(t, err)

	for i, id := range []string{"t1", "t2", "t3"} {
		started := base.Add(time.Duration(i) * time.Minute)
		_, _, err := f.store.StartTask(id, "a1", "crawl", started)
		require.NoError(t, err)
		_, _, err = f.store.FinishTask(id, domain.TaskCompleted, 0, "", 0, "", started.Add(time.Second))
		require.NoError(t, err)
	}

	snap := f.assembler.Assemble()
	require.Len(t, snap.RecentTasks, 2)
	assert.Equal(t, "t3", snap.RecentTasks[0].TaskID)
	assert.Equal(t, "t2", snap.RecentTasks[1].TaskID)
}
