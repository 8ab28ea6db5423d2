// ABOUTME: Websocket relay server bridging one platform's conversations to admin consoles.
// ABOUTME: Accepts operator registrations, relays outbound admin messages, fans out events.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
)

// adminPrefix labels operator-authored text when delivered to the end user.
const adminPrefix = "Admin: "

// ServerConfig holds the per-platform relay server settings.
type ServerConfig struct {
	// Platform tags log lines and the health endpoint, e.g. "telegram".
	Platform string

	// Addr is this platform's statically configured listen address. The two
	// platform instances bind distinct ports.
	Addr string
}

// Server is the relay socket server for one platform instance. It owns the
// operator registry and implements chat.EventSink for conversation fan-out.
type Server struct {
	cfg        ServerConfig
	registry   *chat.Registry
	sender     chat.Sender
	operators  *Manager
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates a relay server over the given conversation registry and
// platform send primitive.
func NewServer(cfg ServerConfig, registry *chat.Registry, sender chat.Sender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		sender:    sender,
		operators: NewManager(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Admin consoles are served from their own origin; the bearer
			// token attached upstream is trusted as-is.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "relay", "platform", cfg.Platform),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Operators exposes the operator registry.
func (s *Server) Operators() *Manager {
	return s.operators
}

// Handler returns the HTTP handler, used by tests to mount the server on an
// httptest listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("relay server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if serveErr := s.httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   "ok",
		"platform": s.cfg.Platform,
	})
}

// handleWS upgrades the connection and runs its read loop until the console
// disconnects. Registration happens in-band via an admin_register frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.readLoop(ws)
}

func (s *Server) readLoop(ws *websocket.Conn) {
	var op *Operator
	defer func() {
		if op != nil {
			s.operators.Unregister(op.AdminID, op.ID)
			op.Close()
		} else {
			_ = ws.Close()
		}
	}()

	ws.SetReadLimit(64 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("operator connection error", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("invalid frame from operator", "error", err)
			continue
		}

		switch frame.Type {
		case TypeAdminRegister:
			if frame.AdminID == "" {
				s.logger.Warn("admin_register without adminId")
				continue
			}
			// A second register on the same socket just rebinds it.
			if op != nil {
				s.operators.Unregister(op.AdminID, op.ID)
				op.AdminID = frame.AdminID
			} else {
				op = NewOperator(frame.AdminID, ws, s.logger)
				op.Start()
			}
			s.operators.Register(op.AdminID, op.ID, op)
			s.pushActiveChats(op)

		case TypeChatMessage:
			s.relayOutbound(frame.UserID, frame.Message)

		default:
			s.logger.Debug("unknown frame type from operator", "type", frame.Type)
		}
	}
}

// pushActiveChats sends the full-state bootstrap frame to exactly the newly
// registered connection, so a reconnecting console never starts empty.
func (s *Server) pushActiveChats(op *Operator) {
	frame, err := encodeActiveChats(s.registry.SnapshotActive())
	if err != nil {
		s.logger.Error("failed to encode active_chats", "error", err)
		return
	}
	if err := op.Send(frame); err != nil {
		s.logger.Warn("failed to push active_chats",
			"admin_id", op.AdminID,
			"error", err,
		)
	}
}

// relayOutbound validates the conversation, records the operator message,
// and forwards it to the end user. A stale key is deliberately a silent
// no-op: the wire protocol has no request/response correlation, and the
// conversation's absence from the next active_chats is the only signal.
func (s *Server) relayOutbound(key, text string) {
	if _, err := s.registry.AppendAdminMessage(key, text); err != nil {
		s.logger.Debug("operator message for inactive conversation dropped",
			"conversation_key", key,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.sender.SendText(ctx, key, adminPrefix+text); err != nil {
		s.logger.Warn("failed to deliver operator message to end user",
			"conversation_key", key,
			"error", err,
		)
	}
}

// ConversationStarted implements chat.EventSink.
func (s *Server) ConversationStarted(conv *chat.Conversation, text string) {
	s.broadcastFrame(encodeNewChat(conv, text))
}

// UserMessage implements chat.EventSink.
func (s *Server) UserMessage(conv *chat.Conversation, msg chat.Message) {
	s.broadcastFrame(encodeChatMessage(conv, msg.Text))
}

// ConversationEnded implements chat.EventSink.
func (s *Server) ConversationEnded(conv *chat.Conversation) {
	s.broadcastFrame(encodeEndChat(conv))
}

func (s *Server) broadcastFrame(frame []byte, err error) {
	if err != nil {
		s.logger.Error("failed to encode operator event", "error", err)
		return
	}
	s.operators.Broadcast(frame)
}
