// Package app wires configuration, storage, pipelines and the HTTP surface
// into a runnable server.
//
// # Initialization Flow
//
//  1. Initialize logging and OpenTelemetry from the loaded config
//  2. Open the storage backend and build the pipeline environment
//  3. Register catalog pipelines as operation steps
//  4. Create the prediction, operation and health services
//  5. Build the chi router and the HTTP server
//
// # Usage
//
//	cfg, err := config.Load()
//	...
//	a, err := app.NewApplication(ctx, cfg)
//	...
//	if err := a.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM. Stop drains HTTP requests, cancels running
// operations, closes websocket clients, closes storage and flushes telemetry.
//
// OpenPipelines is shared with the pipeline CLI, which runs catalog
// pipelines in the foreground without the web server.
package app
