// ABOUTME: Bridge orchestrator that wires per-platform adapters, routers, and relay servers.
// ABOUTME: Manages startup, error propagation, and graceful shutdown of all components.

package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solveighty/restaurant-mechita-sub000/internal/backend"
	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
	"github.com/solveighty/restaurant-mechita-sub000/internal/config"
	"github.com/solveighty/restaurant-mechita-sub000/internal/dedupe"
	"github.com/solveighty/restaurant-mechita-sub000/internal/relay"
	"github.com/solveighty/restaurant-mechita-sub000/internal/telegram"
	"github.com/solveighty/restaurant-mechita-sub000/internal/whatsapp"
)

// adapter is a platform adapter's run loop.
type adapter interface {
	Run(ctx context.Context, router *chat.Router) error
}

// platform bundles one messaging platform's components.
type platform struct {
	name    string
	router  *chat.Router
	relay   *relay.Server
	adapter adapter
}

// Bridge orchestrates the chat relay components.
type Bridge struct {
	config    *config.Config
	backend   *backend.Client
	dedupe    *dedupe.Cache
	platforms []*platform
	logger    *slog.Logger
}

// New builds the bridge from configuration. Platform adapters that need a
// network session (Telegram bot auth, the WhatsApp device store) are
// initialized here; nothing starts serving until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout,
		logger.With("component", "backend"))
	dedupeCache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	b := &Bridge{
		config:  cfg,
		backend: backendClient,
		dedupe:  dedupeCache,
		logger:  logger.With("component", "bridge"),
	}

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram, backendClient, dedupeCache, logger)
		if err != nil {
			dedupeCache.Close()
			return nil, fmt.Errorf("initializing telegram adapter: %w", err)
		}
		b.platforms = append(b.platforms, buildPlatform(
			telegram.Platform, cfg.Telegram.RelayAddr, bot, chat.RouterConfig{
				StartCommand: cfg.Telegram.StartCommand,
				EndCommand:   cfg.Telegram.EndCommand,
				IsCommand:    telegram.IsCommand,
			}, logger))
	}

	if cfg.WhatsApp.Enabled {
		bot, err := whatsapp.New(ctx, cfg.WhatsApp, backendClient, dedupeCache, logger)
		if err != nil {
			dedupeCache.Close()
			return nil, fmt.Errorf("initializing whatsapp adapter: %w", err)
		}
		b.platforms = append(b.platforms, buildPlatform(
			whatsapp.Platform, cfg.WhatsApp.RelayAddr, bot, chat.RouterConfig{
				StartCommand: cfg.WhatsApp.StartCommand,
				EndCommand:   cfg.WhatsApp.EndCommand,
			}, logger))
	}

	return b, nil
}

// buildPlatform wires one platform's registry, relay server, and router.
// The relay server doubles as the router's event sink; the adapter is both
// the router's send primitive and the inbound event source.
func buildPlatform(name, relayAddr string, bot interface {
	adapter
	chat.Sender
}, routerCfg chat.RouterConfig, logger *slog.Logger) *platform {
	registry := chat.NewRegistry(logger.With("platform", name))
	relayServer := relay.NewServer(relay.ServerConfig{
		Platform: name,
		Addr:     relayAddr,
	}, registry, bot, logger)
	router := chat.NewRouter(registry, relayServer, bot, routerCfg,
		logger.With("platform", name))

	return &platform{
		name:    name,
		router:  router,
		relay:   relayServer,
		adapter: bot,
	}
}

// Run starts every platform's relay server and adapter loop and blocks
// until ctx is cancelled or a component fails. Returns nil on graceful
// shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.dedupe.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2*len(b.platforms))
	for _, p := range b.platforms {
		p := p
		b.logger.Info("starting platform", "platform", p.name)

		go func() {
			if err := p.relay.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s relay server: %w", p.name, err)
			}
		}()
		go func() {
			if err := p.adapter.Run(runCtx, p.router); err != nil {
				errCh <- fmt.Errorf("%s adapter: %w", p.name, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, shutting down")
		return nil
	case err := <-errCh:
		b.logger.Error("component failed", "error", err)
		b.drainErrors(errCh)
		return err
	}
}

// drainErrors logs any other failure already queued at shutdown time.
func (b *Bridge) drainErrors(errCh chan error) {
	select {
	case err := <-errCh:
		b.logger.Error("additional component error", "error", err)
	default:
	}
}
