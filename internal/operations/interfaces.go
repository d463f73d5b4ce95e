package operations

// WebSocketHub receives operation snapshots and failure events
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
	BroadcastError(code, message, step string, recoverable bool)
}
