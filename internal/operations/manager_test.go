package operations_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/operations"
	"valuepulse/internal/operations/testutil"
	"valuepulse/internal/processing"
)

func fastConfig() *operations.Config {
	cfg := operations.NewConfig()
	cfg.StepTimeout = 5 * time.Second
	cfg.RetryConfig.InitialDelay = time.Millisecond
	cfg.RetryConfig.MaxDelay = 5 * time.Millisecond
	return cfg
}

func newManager(t *testing.T, cfg *operations.Config, steps ...operations.Step) (*operations.Manager, *testutil.RecordingHub) {
	t.Helper()
	reg := operations.NewRegistry()
	for _, s := range steps {
		require.NoError(t, reg.Register(s))
	}
	hub := &testutil.RecordingHub{}
	logger, _ := testutil.NewTestLogger()
	m := operations.NewManager(hub, reg, cfg, operations.WithLogger(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, hub
}

func stepStatus(resp *operations.OperationResponse, id string) operations.StepStatus {
	if s, ok := resp.Steps[id]; ok {
		return s.Status
	}
	return ""
}

func TestManager_ExecuteWithDependencies(t *testing.T) {
	wages := testutil.NewMockStep("wages")
	wages.ExecuteFunc = testutil.FailTimes("wages", 0, nil, 12)
	values := testutil.NewMockStep("values")
	join := testutil.NewMockStep("join", "wages", "values")
	unrelated := testutil.NewMockStep("unrelated")

	m, hub := newManager(t, fastConfig(), wages, values, join, unrelated)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{
		ID:               "op-1",
		Pipeline:         "join",
		WithDependencies: true,
		Parameters:       map[string]string{"league": "la_liga"},
	})
	require.NoError(t, err)

	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Len(t, resp.Steps, 3)
	assert.Equal(t, 12, resp.Steps["wages"].Rows)
	assert.Equal(t, 1, join.ExecuteCalls())
	assert.Zero(t, unrelated.ExecuteCalls())

	assert.Equal(t, []string{"pending", "running", "completed"}, hub.Statuses("op-1"))
	last := hub.Last("op-1")
	require.NotNil(t, last)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "join", last.Pipeline)
}

func TestManager_ExecuteAlone(t *testing.T) {
	wages := testutil.NewMockStep("wages")
	join := testutil.NewMockStep("join", "wages")
	m, _ := newManager(t, fastConfig(), wages, join)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{Pipeline: "join"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Zero(t, wages.ExecuteCalls(), "dependencies outside the plan do not run")
	assert.Equal(t, 1, join.ExecuteCalls())
}

func TestManager_PassesParameters(t *testing.T) {
	var league string
	step := testutil.NewMockStep("clean")
	step.ExecuteFunc = func(_ context.Context, state *operations.OperationState) error {
		league = state.Param("league")
		return nil
	}
	m, _ := newManager(t, fastConfig(), step)

	_, err := m.Execute(context.Background(), operations.OperationRequest{
		Pipeline:   "clean",
		Parameters: map[string]string{"league": "serie_a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "serie_a", league)
}

func TestManager_Retries(t *testing.T) {
	netErr := &net.OpError{Op: "read", Err: errors.New("reset")}

	tests := []struct {
		name      string
		err       error
		failures  int
		wantCalls int
		wantOK    bool
	}{
		{name: "retryable then success", err: netErr, failures: 2, wantCalls: 3, wantOK: true},
		{name: "retryable exhausted", err: netErr, failures: 5, wantCalls: 3},
		{name: "not retryable", err: processing.ErrInvalidParams, failures: 5, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := testutil.NewMockStep("fetch")
			step.ExecuteFunc = testutil.FailTimes("fetch", tt.failures, tt.err, 1)
			m, _ := newManager(t, fastConfig(), step)

			resp, err := m.Execute(context.Background(), operations.OperationRequest{Pipeline: "fetch"})
			assert.Equal(t, tt.wantCalls, step.ExecuteCalls())
			assert.Equal(t, tt.wantCalls, resp.Steps["fetch"].Attempts)
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, operations.OperationStatusFailed, resp.Status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestManager_FailureSkipsRemaining(t *testing.T) {
	bad := testutil.NewMockStep("bad")
	bad.ExecuteFunc = func(context.Context, *operations.OperationState) error { return errors.New("boom") }
	after := testutil.NewMockStep("after", "bad")
	independent := testutil.NewMockStep("independent")

	t.Run("stop on error", func(t *testing.T) {
		m, hub := newManager(t, fastConfig(), bad, after, independent)
		resp, err := m.Execute(context.Background(), operations.OperationRequest{})
		require.Error(t, err)
		events := hub.ErrorEvents()
		require.Len(t, events, 1, "one error event per failed operation")
		assert.Equal(t, string(operations.ErrorTypeExecution), events[0].Code)
		assert.Equal(t, "bad", events[0].Step)
		assert.Contains(t, events[0].Message, resp.ID)
		assert.False(t, events[0].Recoverable)
		assert.Equal(t, operations.StepStatusFailed, stepStatus(resp, "bad"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "after"))
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "independent"))
	})

	t.Run("continue on error", func(t *testing.T) {
		cfg := fastConfig()
		cfg.ContinueOnError = true
		independent := testutil.NewMockStep("independent")
		m, _ := newManager(t, cfg, bad, testutil.NewMockStep("after", "bad"), independent)
		resp, err := m.Execute(context.Background(), operations.OperationRequest{})
		require.Error(t, err)
		assert.Equal(t, operations.StepStatusSkipped, stepStatus(resp, "after"))
		assert.Equal(t, operations.StepStatusCompleted, stepStatus(resp, "independent"))
		assert.Equal(t, 1, independent.ExecuteCalls())
	})
}

func TestManager_ValidationFailure(t *testing.T) {
	step := testutil.NewMockStep("split")
	step.ValidateFunc = func(*operations.OperationState) error { return errors.New("no store") }
	m, _ := newManager(t, fastConfig(), step)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{Pipeline: "split"})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	assert.Zero(t, step.ExecuteCalls())
	assert.Equal(t, operations.StepStatusFailed, stepStatus(resp, "split"))
}

func TestManager_StepTimeout(t *testing.T) {
	step := testutil.NewMockStep("slow")
	step.ExecuteFunc = testutil.BlockUntilCancelled(nil)
	cfg := fastConfig()
	cfg.SetStepTimeout("slow", 20*time.Millisecond)
	m, _ := newManager(t, cfg, step)

	resp, err := m.Execute(context.Background(), operations.OperationRequest{Pipeline: "slow"})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeTimeout, operations.GetErrorType(err))
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Equal(t, 1, step.ExecuteCalls(), "an expired step is not retried")
}

func TestManager_StartAndCancel(t *testing.T) {
	started := make(chan struct{})
	slow := testutil.NewMockStep("slow")
	slow.ExecuteFunc = testutil.BlockUntilCancelled(started)
	next := testutil.NewMockStep("next", "slow")
	m, hub := newManager(t, fastConfig(), slow, next)

	state, err := m.Start(context.Background(), operations.OperationRequest{ID: "op-c", Pipeline: "next", WithDependencies: true})
	require.NoError(t, err)
	assert.Equal(t, "op-c", state.ID)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("step never started")
	}
	require.NoError(t, m.Cancel("op-c"))

	done, err := m.Done("op-c")
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not stop")
	}

	got, err := m.Get("op-c")
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCancelled, got.Status)
	assert.Equal(t, operations.StepStatusSkipped, got.Steps["next"].Status)
	assert.Zero(t, next.ExecuteCalls())
	assert.Equal(t, "cancelled", hub.Last("op-c").Status)

	assert.ErrorIs(t, m.Cancel("op-c"), operations.ErrOperationCompleted)
	assert.ErrorIs(t, m.Cancel("missing"), operations.ErrOperationNotFound)
}

func TestManager_StartOutlivesRequestContext(t *testing.T) {
	step := testutil.NewMockStep("quick")
	m, _ := newManager(t, fastConfig(), step)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Start(ctx, operations.OperationRequest{ID: "op-bg", Pipeline: "quick"})
	require.NoError(t, err)
	cancel()
	m.Wait()

	got, err := m.Get("op-bg")
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, got.Status)
}

func TestManager_RejectsBadRequests(t *testing.T) {
	m, _ := newManager(t, fastConfig(), testutil.NewMockStep("a"))

	_, err := m.Execute(context.Background(), operations.OperationRequest{Pipeline: "nope"})
	assert.ErrorIs(t, err, operations.ErrStepNotFound)

	_, err = m.Execute(context.Background(), operations.OperationRequest{ID: "dup", Pipeline: "a"})
	require.NoError(t, err)
	_, err = m.Execute(context.Background(), operations.OperationRequest{ID: "dup", Pipeline: "a"})
	assert.Error(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	_, err = m.Start(context.Background(), operations.OperationRequest{Pipeline: "a"})
	assert.ErrorIs(t, err, operations.ErrManagerClosed)
}

func TestManager_ShutdownWaitsForAcceptedStarts(t *testing.T) {
	m, _ := newManager(t, fastConfig(), testutil.NewMockStep("quick"))

	const starts = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
	)
	for i := 0; i < starts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := m.Start(context.Background(), operations.OperationRequest{Pipeline: "quick"})
			if err != nil {
				assert.ErrorIs(t, err, operations.ErrManagerClosed)
				return
			}
			mu.Lock()
			accepted = append(accepted, state.ID)
			mu.Unlock()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	wg.Wait()

	for _, id := range accepted {
		done, err := m.Done(id)
		require.NoError(t, err)
		select {
		case <-done:
		default:
			t.Fatalf("operation %s still running after shutdown", id)
		}
	}
}

func TestManager_History(t *testing.T) {
	cfg := fastConfig()
	cfg.History = 2
	m, _ := newManager(t, cfg, testutil.NewMockStep("a"))

	for _, id := range []string{"1", "2", "3"} {
		_, err := m.Execute(context.Background(), operations.OperationRequest{ID: id, Pipeline: "a"})
		require.NoError(t, err)
	}

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)
	assert.Equal(t, "3", list[1].ID)
	_, err := m.Get("1")
	assert.ErrorIs(t, err, operations.ErrOperationNotFound)
	_, ok := m.Broadcaster().GetSnapshot("1")
	assert.False(t, ok)
}
