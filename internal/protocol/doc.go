// Package protocol defines the wire envelope for the realtime connection.
//
// Every frame on the wire is a JSON-encoded Message:
//   - type: tag used for routing (ping/pong/connection_ack plus application tags)
//   - senderId: the principal that produced the message
//   - payload: opaque structured data, interpreted by the handler for the tag
//   - timestamp: creation time in epoch milliseconds, assigned by the sender
//
// Messages are value objects; once constructed they are never mutated.
package protocol
