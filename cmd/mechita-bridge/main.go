// ABOUTME: Entry point for the mechita-bridge customer-service relay.
// ABOUTME: Bridges Telegram/WhatsApp customers to admin support consoles.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/solveighty/restaurant-mechita-sub000/internal/bridge"
	"github.com/solveighty/restaurant-mechita-sub000/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _     _ _              _          _     _
  _ __ ___   ___  __| |__ (_) |_ __ _      | |__  _ __(_) __| | __ _  ___
 | '_ ' _ \ / _ \/ _' / _ \| | __/ _' |____| '_ \| '__| |/ _' |/ _' |/ _ \
 | | | | | |  __/ (__| | | | | || (_| |____| |_) | |  | | (_| | (_| |  __/
 |_| |_| |_|\___|\___|_| |_|_|\__\__,_|    |_.__/|_|  |_|\__,_|\__, |\___|
                                                               |___/
`

// getConfigPath returns the path to the bridge config file.
// Priority: MECHITA_CONFIG env var > XDG_CONFIG_HOME/mechita/bridge.yaml > ~/.config/mechita/bridge.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MECHITA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mechita", "bridge.yaml")
}

// getDataPath returns the path to the mechita data directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "mechita")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mechita-bridge <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the chat relay bridge")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check relay server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend:  %s\n", cfg.Backend.BaseURL)
	if cfg.Telegram.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Telegram: relay %s\n", cfg.Telegram.RelayAddr)
	}
	if cfg.WhatsApp.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("WhatsApp: relay %s\n", cfg.WhatsApp.RelayAddr)
	}

	fmt.Println()

	logger.Info("starting mechita-bridge",
		"config", configPath,
		"telegram_enabled", cfg.Telegram.Enabled,
		"whatsapp_enabled", cfg.WhatsApp.Enabled,
	)

	// Create and run the bridge
	b, err := bridge.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	return b.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runHealth checks the health endpoint of every enabled relay server.
func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	type target struct{ name, addr string }
	var targets []target
	if cfg.Telegram.Enabled {
		targets = append(targets, target{"telegram", cfg.Telegram.RelayAddr})
	}
	if cfg.WhatsApp.Enabled {
		targets = append(targets, target{"whatsapp", cfg.WhatsApp.RelayAddr})
	}

	for _, t := range targets {
		url := fmt.Sprintf("http://%s/healthz", t.addr)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s health check failed: %w", t.name, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("reading %s response: %w", t.name, err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s unhealthy: status %d", t.name, resp.StatusCode)
		}
		fmt.Printf("%s: %s\n", t.name, strings.TrimSpace(string(body)))
	}

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mechita-bridge configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultStorePath := filepath.Join(defaultDataPath, "whatsapp.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Backend
	fmt.Println("\n--- Backend Configuration ---")
	backendURL := prompt(reader, "Backend base URL", "http://localhost:8080")
	backendToken := prompt(reader, "Backend API token (leave empty to use ${MECHITA_BACKEND_TOKEN})", "")

	// Telegram
	fmt.Println("\n--- Telegram Configuration ---")
	enableTelegram := prompt(reader, "Enable Telegram?", "yes")
	telegramEnabled := strings.ToLower(enableTelegram) == "yes" || strings.ToLower(enableTelegram) == "y"
	var telegramRelay string
	if telegramEnabled {
		telegramRelay = prompt(reader, "Telegram relay listen address", "localhost:9001")
	}

	// WhatsApp
	fmt.Println("\n--- WhatsApp Configuration ---")
	enableWhatsApp := prompt(reader, "Enable WhatsApp?", "no")
	whatsappEnabled := strings.ToLower(enableWhatsApp) == "yes" || strings.ToLower(enableWhatsApp) == "y"
	var whatsappRelay, storePath string
	if whatsappEnabled {
		whatsappRelay = prompt(reader, "WhatsApp relay listen address", "localhost:9002")
		storePath = prompt(reader, "WhatsApp device store path", defaultStorePath)
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# mechita-bridge configuration\n")
	cfg.WriteString("# Generated by mechita-bridge init\n\n")

	cfg.WriteString("backend:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", backendURL))
	if backendToken != "" {
		cfg.WriteString(fmt.Sprintf("  token: \"%s\"\n", backendToken))
	} else {
		cfg.WriteString("  token: \"${MECHITA_BACKEND_TOKEN}\"\n")
	}
	cfg.WriteString("  timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("telegram:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", telegramEnabled))
	if telegramEnabled {
		cfg.WriteString("  token: \"${MECHITA_TELEGRAM_TOKEN}\"\n")
		cfg.WriteString(fmt.Sprintf("  relay_addr: \"%s\"\n", telegramRelay))
	}
	cfg.WriteString("\n")

	cfg.WriteString("whatsapp:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", whatsappEnabled))
	if whatsappEnabled {
		cfg.WriteString(fmt.Sprintf("  store_path: \"%s\"\n", storePath))
		cfg.WriteString(fmt.Sprintf("  relay_addr: \"%s\"\n", whatsappRelay))
	}
	cfg.WriteString("\n")

	cfg.WriteString("dedupe:\n")
	cfg.WriteString("  ttl: \"10m\"\n")
	cfg.WriteString("  max_size: 10000\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists for the WhatsApp store
	if whatsappEnabled {
		if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the bridge:")
	fmt.Printf("  mechita-bridge serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
