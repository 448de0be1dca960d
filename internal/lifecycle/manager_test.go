package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/pkg/models"
)

var coder = &models.AgentDefinition{Name: "coder", Label: "Coder"}

func task(id, text string) models.Task {
	return models.Task{ID: id, AgentName: "coder", Text: text, Priority: 1}
}

// sleeper ignores cancellation so late results can be observed.
func sleeper(d time.Duration, out string, returned chan<- struct{}) Executor {
	return ExecutorFunc(func(context.Context, *models.AgentDefinition, models.Task, ExecOptions) (string, error) {
		time.Sleep(d)
		if returned != nil {
			close(returned)
		}
		return out, nil
	})
}

func TestSpawnWaitRoundTrip(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "hi"), SpawnOptions{})
	require.NotEmpty(t, id)

	snap, err := m.WaitForAgent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, snap.Status)
	assert.Equal(t, "[Coder] hi", snap.Output)
	assert.Equal(t, "task-1", snap.TaskID)
	assert.Equal(t, "coder", snap.AgentName)
	assert.GreaterOrEqual(t, snap.DurationMs, int64(0))
	assert.False(t, snap.EndedAt.IsZero())
	assert.False(t, snap.Cancelled)
	assert.Empty(t, snap.Error)
}

func TestSpawnedContextDoesNotBindRun(t *testing.T) {
	m := NewManager(NewDefaultExecutor(20*time.Millisecond), Options{})
	ctx, cancel := context.WithCancel(context.Background())

	id := m.Spawn(ctx, coder, task("task-1", "hi"), SpawnOptions{})
	cancel()

	snap, err := m.WaitForAgent(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, snap.Status)
}

func TestTimeoutPrecedence(t *testing.T) {
	block := ExecutorFunc(func(ctx context.Context, _ *models.AgentDefinition, _ models.Task, _ ExecOptions) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := NewManager(block, Options{DefaultTimeout: 5 * time.Second})
	limited := &models.AgentDefinition{Name: "slow", Limits: models.AgentLimits{TimeoutSeconds: 7}}

	tests := []struct {
		name  string
		agent *models.AgentDefinition
		opt   time.Duration
		want  int64
	}{
		{"explicit wins", limited, 3 * time.Second, 3000},
		{"agent limit", limited, 0, 7000},
		{"manager default", coder, 0, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := m.Spawn(context.Background(), tt.agent, task("t", "x"), SpawnOptions{Timeout: tt.opt})
			snap, ok := m.GetStatus(id)
			require.True(t, ok)
			assert.Equal(t, tt.want, snap.TimeoutMs)
			m.CancelAgent(id)
		})
	}

	assert.Equal(t, int64(DefaultTimeout/time.Millisecond), NewManager(block, Options{}).resolveTimeout(coder, 0).Milliseconds())
}

func TestTimeoutBeatsSlowExecutor(t *testing.T) {
	returned := make(chan struct{})
	m := NewManager(sleeper(300*time.Millisecond, "late", returned), Options{})
	slow := &models.AgentDefinition{Name: "slow"}

	id := m.Spawn(context.Background(), slow, task("task-1", "x"), SpawnOptions{Timeout: 50 * time.Millisecond})

	snap, err := m.WaitForAgent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RunTimeout, snap.Status)
	assert.Equal(t, "agent slow timed out after 50ms", snap.Error)
	assert.Equal(t, int64(50), snap.TimeoutMs)

	<-returned
	time.Sleep(10 * time.Millisecond)
	after, ok := m.GetStatus(id)
	require.True(t, ok)
	assert.Equal(t, models.RunTimeout, after.Status, "late executor result must not overwrite timeout")
	assert.Empty(t, after.Output)
}

func TestFailedRun(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "please [fail] now"), SpawnOptions{})
	snap, err := m.WaitForAgent(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, snap.Status)
	assert.Equal(t, "simulated failure", snap.Error)
}

func TestExecutorPanicFailsRun(t *testing.T) {
	m := NewManager(ExecutorFunc(func(context.Context, *models.AgentDefinition, models.Task, ExecOptions) (string, error) {
		panic("boom")
	}), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})
	snap, err := m.WaitForAgent(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, snap.Status)
	assert.Contains(t, snap.Error, "boom")
}

func TestCancelAgent(t *testing.T) {
	returned := make(chan struct{})
	m := NewManager(sleeper(100*time.Millisecond, "late", returned), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})

	res := m.CancelAgent(id)
	assert.True(t, res.OK)
	assert.Equal(t, CancelCancelled, res.Reason)

	snap, err := m.WaitForAgent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, snap.Status)
	assert.True(t, snap.Cancelled)
	assert.Equal(t, CancelledMessage, snap.Error)

	again := m.CancelAgent(id)
	assert.False(t, again.OK)
	assert.Equal(t, "already-cancelled", again.Reason)

	<-returned
	time.Sleep(10 * time.Millisecond)
	after, _ := m.GetStatus(id)
	assert.Equal(t, models.RunCancelled, after.Status, "late executor result must not overwrite cancel")
	assert.Empty(t, after.Output)
}

func TestCancelCompletedAndUnknown(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})
	_, err := m.WaitForAgent(context.Background(), id, time.Second)
	require.NoError(t, err)

	res := m.CancelAgent(id)
	assert.False(t, res.OK)
	assert.Equal(t, "already-completed", res.Reason)

	res = m.CancelAgent("nope")
	assert.False(t, res.OK)
	assert.Equal(t, CancelNotFound, res.Reason)
}

func TestTerminalTransitionCancelsExecutorContext(t *testing.T) {
	sawCancel := make(chan struct{})
	m := NewManager(ExecutorFunc(func(ctx context.Context, _ *models.AgentDefinition, _ models.Task, _ ExecOptions) (string, error) {
		<-ctx.Done()
		close(sawCancel)
		return "", ctx.Err()
	}), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})
	m.CancelAgent(id)

	select {
	case <-sawCancel:
	case <-time.After(time.Second):
		t.Fatal("executor context was not cancelled")
	}
}

func TestWaitForAgentUnknown(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	_, err := m.WaitForAgent(context.Background(), "missing", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRun))

	_, ok := m.GetStatus("missing")
	assert.False(t, ok)
}

func TestWaitTimeoutDoesNotMutateRun(t *testing.T) {
	m := NewManager(NewDefaultExecutor(150*time.Millisecond), Options{})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})

	snap, err := m.WaitForAgent(context.Background(), id, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Equal(t, "wait timed out after 20ms", err.Error())
	assert.True(t, snap.WaitTimedOut)
	assert.Equal(t, models.RunRunning, snap.Status)
	assert.Equal(t, "wait timed out after 20ms", snap.Error)

	live, _ := m.GetStatus(id)
	assert.Equal(t, models.RunRunning, live.Status)
	assert.False(t, live.WaitTimedOut)
	assert.Empty(t, live.Error)

	final, err := m.WaitForAgent(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, final.Status)
}

func TestWaitForAgentContext(t *testing.T) {
	m := NewManager(NewDefaultExecutor(time.Second), Options{})
	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{})
	defer m.CancelAgent(id)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	snap, err := m.WaitForAgent(ctx, id, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.RunRunning, snap.Status)
}

func TestWaitForAllPreservesOrder(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	ids := []string{
		m.Spawn(context.Background(), coder, task("task-1", "slow"), SpawnOptions{MockDelay: 60 * time.Millisecond}),
		m.Spawn(context.Background(), coder, task("task-2", "fast"), SpawnOptions{MockDelay: 5 * time.Millisecond}),
		m.Spawn(context.Background(), coder, task("task-3", "mid"), SpawnOptions{MockDelay: 30 * time.Millisecond}),
	}

	snaps, err := m.WaitForAll(context.Background(), ids, time.Second)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, s := range snaps {
		assert.Equal(t, ids[i], s.RunID)
		assert.Equal(t, models.RunCompleted, s.Status)
	}
	assert.Equal(t, "[Coder] slow", snaps[0].Output)
	assert.Equal(t, "[Coder] fast", snaps[1].Output)
}

func TestWaitForAllReportsErrors(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	good := m.Spawn(context.Background(), coder, task("task-1", "ok"), SpawnOptions{})
	slow := m.Spawn(context.Background(), coder, task("task-2", "slow"), SpawnOptions{MockDelay: 200 * time.Millisecond})
	defer m.CancelAgent(slow)

	snaps, err := m.WaitForAll(context.Background(), []string{good, "missing", slow}, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRun)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	require.Len(t, snaps, 3)
	assert.Equal(t, models.RunCompleted, snaps[0].Status)
	assert.Equal(t, "missing", snaps[1].RunID)
	assert.True(t, snaps[2].WaitTimedOut)
}

func TestOnTransitionCalledOnce(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	m := NewManager(NewDefaultExecutor(10*time.Millisecond), Options{
		OnTransition: func(s models.RunSnapshot) {
			mu.Lock()
			seen[s.RunID]++
			mu.Unlock()
		},
	})

	id := m.Spawn(context.Background(), coder, task("task-1", "x"), SpawnOptions{Timeout: 10 * time.Millisecond})
	m.CancelAgent(id)
	_, err := m.WaitForAgent(context.Background(), id, 0)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[id])
}

func TestConcurrentRacersSingleTransition(t *testing.T) {
	var transitions atomic.Int32
	m := NewManager(NewDefaultExecutor(-1), Options{
		OnTransition: func(models.RunSnapshot) { transitions.Add(1) },
	})

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = m.Spawn(context.Background(), coder, task("t", "x"), SpawnOptions{Timeout: time.Millisecond})
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CancelAgent(id)
		}()
	}
	wg.Wait()

	_, err := m.WaitForAll(context.Background(), ids, 0)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(n), transitions.Load())

	for _, s := range m.List() {
		assert.True(t, s.Status.IsTerminal())
	}
}

func TestListOrderAndIndependentManagers(t *testing.T) {
	a := NewManager(NewDefaultExecutor(-1), Options{})
	b := NewManager(NewDefaultExecutor(-1), Options{})

	first := a.Spawn(context.Background(), coder, task("task-1", "a"), SpawnOptions{})
	second := a.Spawn(context.Background(), coder, task("task-2", "b"), SpawnOptions{})

	list := a.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].RunID)
	assert.Equal(t, second, list[1].RunID)

	assert.Empty(t, b.List())
	_, ok := b.GetStatus(first)
	assert.False(t, ok)
}

func TestSpawnNilAgentUsesTaskAgentName(t *testing.T) {
	m := NewManager(NewDefaultExecutor(-1), Options{})

	id := m.Spawn(context.Background(), nil, models.Task{ID: "task-1", AgentName: "memory", Text: "x"}, SpawnOptions{})
	snap, err := m.WaitForAgent(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "memory", snap.AgentName)
	assert.Equal(t, "[memory] x", snap.Output)
}
