// ABOUTME: Telegram platform adapter: update loop, account resolution, command fallback.
// ABOUTME: Single goroutine consumes updates so conversation state has one writer.

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/solveighty/restaurant-mechita-sub000/internal/backend"
	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
	"github.com/solveighty/restaurant-mechita-sub000/internal/config"
	"github.com/solveighty/restaurant-mechita-sub000/internal/dedupe"
)

// Platform tags conversation keys and dedupe entries for this adapter.
const Platform = "telegram"

const keyPrefix = "tg_"

// ConversationKey namespaces a Telegram chat id into a conversation key.
func ConversationKey(chatID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, chatID)
}

// chatIDFromKey recovers the Telegram chat id from a conversation key.
func chatIDFromKey(key string) (int64, error) {
	raw, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram conversation key: %q", key)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// IsCommand reports whether text looks like a Telegram bot command. The
// router uses this to swallow commands typed during an active chat.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// messageSender is the slice of tgbotapi.BotAPI the adapter needs; tests
// substitute their own.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// backendAPI is what the adapter needs from the restaurant backend.
type backendAPI interface {
	UserByPlatform(ctx context.Context, platform, platformID string) (*backend.Account, error)
	NotifySupportRequest(ctx context.Context, accountID string) error
	Menu(ctx context.Context) ([]backend.MenuItem, error)
	Orders(ctx context.Context, accountID string) ([]backend.Order, error)
}

// Bot is the Telegram platform adapter.
type Bot struct {
	api     *tgbotapi.BotAPI
	send    messageSender
	backend backendAPI
	dedupe  *dedupe.Cache
	cfg     config.TelegramConfig
	router  *chat.Router
	logger  *slog.Logger

	mu       sync.Mutex
	accounts map[int64]*backend.Account
}

// New connects to the Telegram Bot API and returns the adapter.
func New(cfg config.TelegramConfig, api backendAPI, cache *dedupe.Cache, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	logger = logger.With("component", "telegram", "bot_username", botAPI.Self.UserName)
	logger.Info("telegram bot authorized")

	return &Bot{
		api:      botAPI,
		send:     botAPI,
		backend:  api,
		dedupe:   cache,
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[int64]*backend.Account),
	}, nil
}

// SendText implements chat.Sender for telegram conversation keys.
func (b *Bot) SendText(_ context.Context, conversationKey, text string) error {
	chatID, err := chatIDFromKey(conversationKey)
	if err != nil {
		return err
	}
	_, err = b.send.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Run consumes updates until ctx is cancelled. All updates are processed on
// this goroutine; the conversation registry for this platform has exactly
// one inbound writer.
func (b *Bot) Run(ctx context.Context, router *chat.Router) error {
	b.router = router

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 60
	updates := b.api.GetUpdatesChan(updateCfg)

	b.logger.Info("telegram update loop started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	dedupeKey := dedupe.Key(Platform, fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID))
	if b.dedupe.CheckAndMark(dedupeKey) {
		b.logger.Debug("duplicate telegram update ignored", "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
		return
	}

	key := ConversationKey(msg.Chat.ID)
	account := b.resolveAccount(ctx, msg)

	_, wasActive := b.routerRegistryState(key)
	if b.router.HandleUserText(ctx, key, displayName(msg, account), account.ID, msg.Text) {
		// A successful start command is the moment to nudge the backend.
		if !wasActive && strings.EqualFold(strings.TrimSpace(msg.Text), b.cfg.StartCommand) && account.ID != "" {
			go b.notifySupport(account.ID)
		}
		return
	}

	b.handleCommand(ctx, msg, account)
}

// routerRegistryState reports whether a conversation was active before the
// router ran; used to distinguish a fresh start from a rejected one.
func (b *Bot) routerRegistryState(key string) (*chat.Conversation, bool) {
	return b.router.Registry().Get(key)
}

// notifySupport is best effort; failures are logged and never retried.
func (b *Bot) notifySupport(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.backend.NotifySupportRequest(ctx, accountID); err != nil {
		b.logger.Warn("support notification failed", "account_id", accountID, "error", err)
	}
}

// resolveAccount maps the Telegram user to its backend account, caching per
// chat. An unlinked or unreachable backend yields an empty account; chat
// still works, operators just see no business id.
func (b *Bot) resolveAccount(ctx context.Context, msg *tgbotapi.Message) *backend.Account {
	b.mu.Lock()
	if account, ok := b.accounts[msg.Chat.ID]; ok {
		b.mu.Unlock()
		return account
	}
	b.mu.Unlock()

	account := &backend.Account{}
	resolved, err := b.backend.UserByPlatform(ctx, Platform, strconv.FormatInt(msg.Chat.ID, 10))
	switch {
	case err == nil:
		account = resolved
	case errors.Is(err, backend.ErrNotLinked):
		b.logger.Debug("telegram user not linked to backend account", "chat_id", msg.Chat.ID)
	default:
		b.logger.Warn("account resolution failed", "chat_id", msg.Chat.ID, "error", err)
		return account // don't cache transient failures
	}

	b.mu.Lock()
	b.accounts[msg.Chat.ID] = account
	b.mu.Unlock()
	return account
}

func displayName(msg *tgbotapi.Message, account *backend.Account) string {
	if account != nil && account.Name != "" {
		return account.Name
	}
	if msg.From != nil {
		name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if name != "" {
			return name
		}
		if msg.From.UserName != "" {
			return "@" + msg.From.UserName
		}
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}

// handleCommand serves the ordinary bot commands outside the chat relay.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, account *backend.Account) {
	if !msg.IsCommand() {
		return
	}

	var reply string
	switch msg.Command() {
	case "start":
		reply = fmt.Sprintf(
			"Welcome to Mechita! Use /menu to browse, /orders for your order history, or %s to talk to customer service.",
			b.cfg.StartCommand)
	case "menu":
		reply = b.menuReply(ctx)
	case "orders":
		reply = b.ordersReply(ctx, account)
	default:
		b.logger.Debug("unknown telegram command", "command", msg.Command(), "chat_id", msg.Chat.ID)
		return
	}

	if _, err := b.send.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.Warn("failed to send command reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) menuReply(ctx context.Context) string {
	items, err := b.backend.Menu(ctx)
	if err != nil {
		b.logger.Warn("menu fetch failed", "error", err)
		return "The menu is unavailable right now, please try again later."
	}
	if len(items) == 0 {
		return "The menu is empty right now."
	}

	var sb strings.Builder
	sb.WriteString("Today's menu:\n")
	category := ""
	for _, item := range items {
		if item.Category != category {
			category = item.Category
			fmt.Fprintf(&sb, "\n%s\n", category)
		}
		fmt.Fprintf(&sb, "  %s — $%.2f\n", item.Name, item.Price)
	}
	return sb.String()
}

func (b *Bot) ordersReply(ctx context.Context, account *backend.Account) string {
	if account == nil || account.ID == "" {
		return "Your Telegram isn't linked to a Mechita account yet. Log in on the website to link it."
	}

	orders, err := b.backend.Orders(ctx, account.ID)
	if err != nil {
		b.logger.Warn("orders fetch failed", "account_id", account.ID, "error", err)
		return "Order history is unavailable right now, please try again later."
	}
	if len(orders) == 0 {
		return "You have no orders yet."
	}

	var sb strings.Builder
	sb.WriteString("Your recent orders:\n")
	for _, order := range orders {
		fmt.Fprintf(&sb, "  #%s — %s — $%.2f\n", order.ID, order.Status, order.Total)
	}
	return sb.String()
}
