// ABOUTME: Package doc for the bridge orchestrator.
// ABOUTME: Describes per-platform component wiring and lifecycle.

// Package bridge assembles and runs the chat relay: for each enabled
// messaging platform it wires a conversation registry, the platform
// adapter, a relay socket server for admin consoles, and a message router,
// then supervises them until shutdown.
//
// Platform instances are fully independent. Each has its own registry,
// router, and relay listen address; nothing is shared between the Telegram
// and WhatsApp sides except the backend client and the dedupe cache.
package bridge
