package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/operations"
	"valuepulse/internal/pipeline"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

type harness struct {
	svc     *OperationService
	store   *storage.FSStore
	release chan struct{}
}

// newHarness registers two small pipelines next to the builtin catalog:
// "seed" writes a table and "slow" blocks until released or cancelled.
func newHarness(t *testing.T, opts ...OperationServiceOption) *harness {
	t.Helper()
	h := &harness{store: storage.NewFSStore(t.TempDir()), release: make(chan struct{})}

	catalog := pipeline.NewCatalog()
	require.NoError(t, catalog.Register(pipeline.Pipeline{
		Name:        "seed",
		Description: "Write a small table",
		Run: func(ctx context.Context, env *pipeline.Env, _ pipeline.Params) (pipeline.Result, error) {
			tbl, err := table.FromRecords([]string{"player"}, [][]any{{"Pedri"}, {"Gavi"}})
			if err != nil {
				return pipeline.Result{}, err
			}
			loc := pipeline.Location{Bucket: "scratch", Blob: "seed.csv"}
			return pipeline.Result{Outputs: []pipeline.Location{loc}, Rows: tbl.Len()},
				env.Store.Save(ctx, tbl, loc.Bucket, loc.Blob)
		},
	}))
	require.NoError(t, catalog.Register(pipeline.Pipeline{
		Name: "slow",
		Run: func(ctx context.Context, _ *pipeline.Env, _ pipeline.Params) (pipeline.Result, error) {
			select {
			case <-h.release:
				return pipeline.Result{}, nil
			case <-ctx.Done():
				return pipeline.Result{}, ctx.Err()
			}
		},
	}))

	reg := operations.NewRegistry()
	require.NoError(t, operations.RegisterCatalog(reg, catalog, &pipeline.Env{Store: h.store, Logger: discardLogger()}))
	cfg := operations.NewConfig()
	cfg.StepTimeout = 5 * time.Second
	cfg.RetryConfig.InitialDelay = time.Millisecond
	manager := operations.NewManager(nil, reg, cfg, operations.WithLogger(discardLogger()))

	h.svc = NewOperationService(manager, catalog, discardLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

func TestOperationService_StartRunsHooks(t *testing.T) {
	var mu sync.Mutex
	var finished []operations.OperationStatusValue
	h := newHarness(t, OnFinish(func(_ context.Context, state *operations.OperationState) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, state.Status)
	}))

	state, err := h.svc.StartOperation(context.Background(), operations.OperationRequest{Pipeline: "seed"})
	require.NoError(t, err)
	assert.NotEmpty(t, state.ID)
	assert.Equal(t, []string{"seed"}, state.StepOrder)

	h.svc.Wait()
	mu.Lock()
	assert.Equal(t, []operations.OperationStatusValue{operations.OperationStatusCompleted}, finished)
	mu.Unlock()

	resp, err := h.svc.GetStatus(context.Background(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, 2, resp.Steps["seed"].Rows)

	saved, err := h.store.Load(context.Background(), "scratch", "seed.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())
}

func TestOperationService_UnknownPipeline(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartOperation(context.Background(), operations.OperationRequest{Pipeline: "does-not-exist"})
	assert.ErrorIs(t, err, ErrUnknownPipeline)

	_, err = h.svc.ExecuteOperation(context.Background(), operations.OperationRequest{Pipeline: "does-not-exist"})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestOperationService_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state, err := h.svc.StartOperation(ctx, operations.OperationRequest{Pipeline: "slow"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		running, _ := h.svc.ListOperationsByStatus(ctx, operations.OperationStatusRunning)
		return len(running) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.svc.CancelOperation(ctx, state.ID))
	h.svc.Wait()

	op, err := h.svc.GetOperation(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCancelled, op.Status)

	err = h.svc.CancelOperation(ctx, state.ID)
	assert.ErrorIs(t, err, ErrOperationCompleted)
	err = h.svc.CancelOperation(ctx, "missing")
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestOperationService_CancelAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ExecuteOperation(ctx, operations.OperationRequest{Pipeline: "seed"})
	require.NoError(t, err)
	for range 2 {
		_, err := h.svc.StartOperation(ctx, operations.OperationRequest{Pipeline: "slow"})
		require.NoError(t, err)
	}

	require.NoError(t, h.svc.CancelAll(ctx))
	h.svc.Wait()

	metrics, err := h.svc.GetOperationMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics["total_operations"])
	assert.Equal(t, 0, metrics["active_operations"])
	assert.Equal(t, 1, metrics["completed_operations"])
	assert.Equal(t, 2, metrics["cancelled_operations"])
	steps, ok := metrics["steps"].([]string)
	require.True(t, ok)
	assert.Len(t, steps, metrics["step_count"].(int))
	assert.Contains(t, steps, pipeline.CleanFbref)
	assert.Contains(t, steps, "seed")
}

func TestOperationService_OperationTypes(t *testing.T) {
	h := newHarness(t)
	types, err := h.svc.GetOperationTypes(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(types))
	for _, ot := range types {
		ids = append(ids, ot.ID)
	}
	assert.Contains(t, ids, pipeline.CleanFbref)
	assert.Contains(t, ids, "seed")
	assert.Contains(t, ids, "slow")
}

func TestRefreshOnSuccess(t *testing.T) {
	predictions, loader := newPredictionService(t, time.Hour)
	loader.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(predictionsTable(t), nil)
	require.NoError(t, predictions.Check(context.Background()))

	hub := &MockRefresher{}
	hub.On("BroadcastRefresh", "operation:op-1", []string{"predictions", "dropdowns"}).Once()

	hook := RefreshOnSuccess(predictions, hub)

	failed := operations.NewOperationState("op-0")
	failed.Fail(errors.New("boom"))
	hook(context.Background(), failed)
	assert.False(t, predictions.LoadedAt().IsZero(), "failed operations keep the cache")

	done := operations.NewOperationState("op-1")
	done.Complete()
	hook(context.Background(), done)
	assert.True(t, predictions.LoadedAt().IsZero())
	hub.AssertExpectations(t)
}
