// ABOUTME: Package doc for the WhatsApp platform adapter.
// ABOUTME: Describes the whatsmeow client wiring and conversation keying.

// Package whatsapp adapts the WhatsApp messaging platform into the chat
// relay. It wraps a whatsmeow client: incoming message events are funneled
// onto a single goroutine and pushed through the platform's message router,
// and outbound text is sent back as plain conversation messages.
//
// Device credentials live in a sqlite store managed by whatsmeow; no
// conversation state is persisted there. On first run with no stored
// device, the adapter prints a QR code flow to the log for pairing.
//
// Conversation keys take the form "wa_<user>", where <user> is the phone
// number portion of the sender's JID.
package whatsapp
