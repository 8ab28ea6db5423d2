// ABOUTME: WhatsApp platform adapter: whatsmeow event loop, QR pairing, text send.
// ABOUTME: Single goroutine consumes message events so conversation state has one writer.

package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/solveighty/restaurant-mechita-sub000/internal/backend"
	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
	"github.com/solveighty/restaurant-mechita-sub000/internal/config"
	"github.com/solveighty/restaurant-mechita-sub000/internal/dedupe"
)

// Platform tags conversation keys and dedupe entries for this adapter.
const Platform = "whatsapp"

const keyPrefix = "wa_"

// ConversationKey namespaces a WhatsApp JID user into a conversation key.
func ConversationKey(jid types.JID) string {
	return keyPrefix + jid.User
}

// jidFromKey recovers the user JID from a conversation key.
func jidFromKey(key string) (types.JID, error) {
	user, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || user == "" {
		return types.JID{}, fmt.Errorf("not a whatsapp conversation key: %q", key)
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}

// extractText pulls the plain text out of a message, covering both bare
// conversation messages and extended (reply/link-preview) messages.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// backendAPI is what the adapter needs from the restaurant backend.
type backendAPI interface {
	UserByPlatform(ctx context.Context, platform, platformID string) (*backend.Account, error)
	NotifySupportRequest(ctx context.Context, accountID string) error
}

// waClient is the slice of whatsmeow.Client the event loop needs; tests
// substitute their own.
type waClient interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// inboundEvent is one user message lifted out of the whatsmeow callback.
type inboundEvent struct {
	jid       types.JID
	messageID string
	pushName  string
	text      string
}

// Bot is the WhatsApp platform adapter.
type Bot struct {
	client  *whatsmeow.Client
	send    waClient
	backend backendAPI
	dedupe  *dedupe.Cache
	cfg     config.WhatsAppConfig
	router  *chat.Router
	logger  *slog.Logger

	events chan inboundEvent

	mu       sync.Mutex
	accounts map[string]*backend.Account
}

// New opens the device-credential store and builds the whatsmeow client.
// The client is not connected yet; Run handles login and the event loop.
func New(ctx context.Context, cfg config.WhatsAppConfig, api backendAPI, cache *dedupe.Cache, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "whatsapp")

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", cfg.StorePath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("opening whatsapp device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)

	b := &Bot{
		client:   client,
		send:     client,
		backend:  api,
		dedupe:   cache,
		cfg:      cfg,
		logger:   logger,
		events:   make(chan inboundEvent, 256),
		accounts: make(map[string]*backend.Account),
	}
	client.AddEventHandler(b.onEvent)
	return b, nil
}

// SendText implements chat.Sender for whatsapp conversation keys.
func (b *Bot) SendText(ctx context.Context, conversationKey, text string) error {
	jid, err := jidFromKey(conversationKey)
	if err != nil {
		return err
	}
	_, err = b.send.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

// Run connects the client (pairing via QR if no device is stored) and
// consumes message events until ctx is cancelled. All events are processed
// on this goroutine; the conversation registry for this platform has
// exactly one inbound writer.
func (b *Bot) Run(ctx context.Context, router *chat.Router) error {
	b.router = router

	if err := b.connect(ctx); err != nil {
		return err
	}
	defer b.client.Disconnect()

	b.logger.Info("whatsapp event loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.events:
			b.handleMessage(ctx, ev)
		}
	}
}

func (b *Bot) connect(ctx context.Context) error {
	if b.client.Store.ID != nil {
		if err := b.client.Connect(); err != nil {
			return fmt.Errorf("connecting whatsapp client: %w", err)
		}
		b.logger.Info("whatsapp client connected", "jid", b.client.Store.ID.String())
		return nil
	}

	// No stored device; pair by QR code.
	qrChan, err := b.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("requesting whatsapp QR channel: %w", err)
	}
	if err := b.client.Connect(); err != nil {
		return fmt.Errorf("connecting whatsapp client: %w", err)
	}
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			b.logger.Info("scan this code with WhatsApp to pair", "qr_code", item.Code)
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("whatsapp pairing failed: %w", item.Error)
		default:
			b.logger.Info("whatsapp pairing", "event", item.Event)
		}
	}
	if b.client.Store.ID == nil {
		return errors.New("whatsapp pairing did not complete")
	}
	b.logger.Info("whatsapp client paired", "jid", b.client.Store.ID.String())
	return nil
}

// onEvent runs on whatsmeow's dispatch goroutine; it only lifts message
// events onto the adapter's channel.
func (b *Bot) onEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}
	text := extractText(msg.Message)
	if text == "" {
		return
	}

	ev := inboundEvent{
		jid:       msg.Info.Sender.ToNonAD(),
		messageID: msg.Info.ID,
		pushName:  msg.Info.PushName,
		text:      text,
	}
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("whatsapp event buffer full, dropping message",
			"jid", ev.jid.String(), "message_id", ev.messageID)
	}
}

func (b *Bot) handleMessage(ctx context.Context, ev inboundEvent) {
	if b.dedupe.CheckAndMark(dedupe.Key(Platform, ev.messageID)) {
		b.logger.Debug("duplicate whatsapp message ignored", "message_id", ev.messageID)
		return
	}

	key := ConversationKey(ev.jid)
	account := b.resolveAccount(ctx, ev.jid)

	_, wasActive := b.router.Registry().Get(key)
	if b.router.HandleUserText(ctx, key, displayName(ev, account), account.ID, ev.text) {
		if !wasActive && strings.EqualFold(strings.TrimSpace(ev.text), b.cfg.StartCommand) && account.ID != "" {
			go b.notifySupport(account.ID)
		}
		return
	}

	// Unlike Telegram there is no slash-command surface here; anything the
	// router declines is ordinary chatter outside a support session.
	b.logger.Debug("whatsapp message outside support chat ignored", "jid", ev.jid.String())
}

// notifySupport is best effort; failures are logged and never retried.
func (b *Bot) notifySupport(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.backend.NotifySupportRequest(ctx, accountID); err != nil {
		b.logger.Warn("support notification failed", "account_id", accountID, "error", err)
	}
}

// resolveAccount maps the WhatsApp sender to its backend account, caching
// per JID user. An unlinked or unreachable backend yields an empty account.
func (b *Bot) resolveAccount(ctx context.Context, jid types.JID) *backend.Account {
	b.mu.Lock()
	if account, ok := b.accounts[jid.User]; ok {
		b.mu.Unlock()
		return account
	}
	b.mu.Unlock()

	account := &backend.Account{}
	resolved, err := b.backend.UserByPlatform(ctx, Platform, jid.User)
	switch {
	case err == nil:
		account = resolved
	case errors.Is(err, backend.ErrNotLinked):
		b.logger.Debug("whatsapp user not linked to backend account", "jid", jid.String())
	default:
		b.logger.Warn("account resolution failed", "jid", jid.String(), "error", err)
		return account // don't cache transient failures
	}

	b.mu.Lock()
	b.accounts[jid.User] = account
	b.mu.Unlock()
	return account
}

func displayName(ev inboundEvent, account *backend.Account) string {
	if account != nil && account.Name != "" {
		return account.Name
	}
	if ev.pushName != "" {
		return ev.pushName
	}
	return ev.jid.User
}
