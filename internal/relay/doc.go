// Package relay exposes one platform's active support conversations to
// admin consoles over a persistent websocket connection.
//
// # Server
//
// Each platform instance runs its own Server on its own listen address:
//
//	srv := relay.NewServer(relay.ServerConfig{Platform: "telegram", Addr: ":8081"}, reg, sender, logger)
//
// The Server accepts long-lived duplex connections at /ws, registers
// operators on their admin_register frame, and relays structured JSON
// events between the conversation registry and every registered operator.
// It also implements chat.EventSink, so the platform's Router fans
// conversation events out through it.
//
// # Manager
//
// The Manager is the operator registry: admin id to live connection
// handle. Registration is last-wins (a reconnect replaces the previous
// handle), removal on disconnect is unconditional, and broadcast iterates
// a snapshot of handles so one dead connection never blocks the rest.
//
// # Wire protocol
//
// JSON text frames, UTF-8. Inbound: admin_register, chat_message.
// Outbound: active_chats, new_chat, chat_message, end_chat. Timestamps are
// RFC 3339. See wire.go for the exact shapes.
package relay
