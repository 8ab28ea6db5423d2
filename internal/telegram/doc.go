// Package telegram is the Telegram platform adapter. It consumes bot
// updates on a single goroutine, deduplicates them, runs each text through
// the chat router, and falls back to the ordinary bot commands (/menu,
// /orders) when the router declines. It also provides the outbound send
// primitive used by the router and the relay server.
package telegram
