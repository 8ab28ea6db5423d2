// ABOUTME: Classifies inbound end-user text into chat commands, relayed messages,
// ABOUTME: or ordinary bot traffic, and drives the registry plus operator fan-out.

package chat

import (
	"context"
	"log/slog"
	"strings"
)

// Sender delivers outbound text to an end user through the platform
// adapter's send primitive. The conversation key carries the platform
// prefix; the adapter resolves it back to its native chat identifier.
type Sender interface {
	SendText(ctx context.Context, conversationKey, text string) error
}

// EventSink receives conversation events for fan-out to every connected
// operator. Implementations must not block the caller on a slow operator.
type EventSink interface {
	ConversationStarted(conv *Conversation, text string)
	UserMessage(conv *Conversation, msg Message)
	ConversationEnded(conv *Conversation)
}

// Replies holds the user-facing texts for every command outcome.
type Replies struct {
	Started       string
	AlreadyActive string
	Ended         string
	NothingToEnd  string
}

// DefaultReplies are used where the config leaves reply texts empty.
var DefaultReplies = Replies{
	Started:       "You are now connected to customer service. An admin will reply here shortly.",
	AlreadyActive: "You already have an open support chat. Finish your current chat first.",
	Ended:         "Your support chat has ended. Thanks for reaching out!",
	NothingToEnd:  "There is no open support chat to end.",
}

// RouterConfig parameterizes one Router instance for its platform.
type RouterConfig struct {
	// StartCommand and EndCommand are matched case-insensitively against
	// the trimmed message text.
	StartCommand string
	EndCommand   string

	Replies Replies

	// IsCommand reports whether text is some other recognized bot command
	// (menu, orders, ...). While a conversation is active such text is
	// swallowed rather than relayed, so a user cannot trigger unrelated
	// commands mid-chat. Nil means no other commands exist.
	IsCommand func(text string) bool
}

// Router is the protocol-level decision logic for one platform. The same
// implementation is instantiated once per platform adapter.
type Router struct {
	registry *Registry
	sink     EventSink
	sender   Sender
	cfg      RouterConfig
	logger   *slog.Logger
}

// NewRouter creates a Router over the given registry, operator sink and
// outbound sender.
func NewRouter(registry *Registry, sink EventSink, sender Sender, cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Replies == (Replies{}) {
		cfg.Replies = DefaultReplies
	}
	return &Router{
		registry: registry,
		sink:     sink,
		sender:   sender,
		cfg:      cfg,
		logger:   logger.With("component", "chat-router"),
	}
}

// Registry exposes the conversation registry this router drives.
func (r *Router) Registry() *Registry {
	return r.registry
}

// HandleUserText classifies one inbound end-user message and applies its
// effect. It returns true when the text was a chat-relay concern; false
// hands the text back to the adapter's ordinary command handling.
//
// Precedence: start command, end command, then relay-while-active. Command
// matches always win over relaying, so a command typed verbatim during an
// active chat is still treated as a command.
func (r *Router) HandleUserText(ctx context.Context, key, displayName, accountID, text string) bool {
	trimmed := strings.TrimSpace(text)

	switch {
	case strings.EqualFold(trimmed, r.cfg.StartCommand):
		r.handleStart(ctx, key, displayName, accountID, trimmed)
		return true

	case strings.EqualFold(trimmed, r.cfg.EndCommand):
		r.handleEnd(ctx, key)
		return true
	}

	conv, active := r.registry.Get(key)
	if !active {
		return false
	}

	// Other recognized commands are swallowed while a chat is active rather
	// than leaked to operators as chat text.
	if r.cfg.IsCommand != nil && r.cfg.IsCommand(trimmed) {
		r.logger.Debug("command ignored during active conversation",
			"conversation_key", key,
			"text", trimmed,
		)
		return true
	}

	msg, err := r.registry.AppendUserMessage(key, text)
	if err != nil {
		// Conversation ended between the Get and the append; treat the text
		// as ordinary traffic.
		r.logger.Debug("conversation gone before append", "conversation_key", key)
		return false
	}
	r.sink.UserMessage(conv, msg)
	return true
}

func (r *Router) handleStart(ctx context.Context, key, displayName, accountID, text string) {
	conv, err := r.registry.Start(key, displayName, accountID)
	if err != nil {
		r.reply(ctx, key, r.cfg.Replies.AlreadyActive)
		return
	}
	r.reply(ctx, key, r.cfg.Replies.Started)
	r.sink.ConversationStarted(conv, text)
}

func (r *Router) handleEnd(ctx context.Context, key string) {
	conv, err := r.registry.End(key)
	if err != nil {
		r.reply(ctx, key, r.cfg.Replies.NothingToEnd)
		return
	}
	r.reply(ctx, key, r.cfg.Replies.Ended)
	r.sink.ConversationEnded(conv)
}

// reply is best effort: a failed platform send is logged and never aborts
// routing.
func (r *Router) reply(ctx context.Context, key, text string) {
	if err := r.sender.SendText(ctx, key, text); err != nil {
		r.logger.Warn("failed to send reply to end user",
			"conversation_key", key,
			"error", err,
		)
	}
}
