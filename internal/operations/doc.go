// Package operations runs data pipelines as tracked, cancellable
// operations.
//
// Each catalog pipeline is registered as a Step. A request names one
// pipeline, optionally with everything it depends on, or nothing to run the
// whole registry. The Manager resolves the request to a dependency ordered
// plan and runs it:
//
//   - steps run one after another; a step whose planned dependency did not
//     complete is skipped
//   - each step has a timeout covering all of its attempts
//   - only retryable failures (timeouts, network errors) are retried, with
//     exponential backoff
//   - operations started with Start run in the background and can be
//     stopped with Cancel
//
// Every state change goes through the StatusBroadcaster, which sends a full
// OperationSnapshot to the WebSocket hub.
//
// Example:
//
//	reg := operations.NewRegistry()
//	if err := operations.RegisterCatalog(reg, pipeline.NewCatalog(), env); err != nil {
//		return err
//	}
//	mgr := operations.NewManager(hub, reg, operations.NewConfig(), operations.WithLogger(logger))
//	state, err := mgr.Start(ctx, operations.OperationRequest{
//		Pipeline:         "split",
//		WithDependencies: true,
//	})
package operations
