// Package chat implements the in-memory support-conversation core shared by
// both messaging-platform adapters.
//
// # Registry
//
// The Registry tracks every active support conversation for one platform
// instance:
//
//	reg := chat.NewRegistry(logger)
//
// Key operations:
//
//   - Start(key, displayName, accountID): Open a conversation
//   - End(key): Close and remove a conversation
//   - AppendUserMessage(key, text): Record an end-user message
//   - AppendAdminMessage(key, text): Record an operator message
//   - SnapshotActive(): Point-in-time copy of every active conversation
//
// Each platform adapter owns exactly one Registry. All mutation funnels
// through the Registry's own lock, so adapters and relay servers may call
// into it from their own goroutines.
//
// # Router
//
// The Router classifies inbound end-user text for one platform: start/end
// commands, relayed chat messages while a conversation is active, or
// ordinary bot traffic the caller handles itself. It is parameterized with
// the platform tag, the command words, the user-facing reply texts, a
// Sender for outbound delivery, and an EventSink for operator fan-out, so
// the same implementation serves both platforms.
package chat
