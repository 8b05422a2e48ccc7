// Package connection implements the Connection Manager.
//
// The Connection Manager:
//   - Maintains one logical WebSocket connection per principal
//   - Reconnects automatically with exponential backoff (capped at 30s)
//   - Probes liveness on an interval while connected
//   - Queues outbound messages while disconnected and flushes them in order
//   - Dispatches inbound messages to handlers registered per tag
package connection
