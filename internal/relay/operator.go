// ABOUTME: Represents a single connected admin console and its websocket handle.
// ABOUTME: Outbound frames go through a buffered channel so broadcast never blocks.

package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// errOperatorClosed indicates the connection is already torn down.
var errOperatorClosed = errors.New("operator connection closed")

// Operator is one live admin console link. The connection id distinguishes
// successive connections from the same admin id across reconnects.
type Operator struct {
	// ID uniquely identifies this connection handle.
	ID string

	// AdminID is the caller-supplied operator identifier. It is not
	// verified against any identity store.
	AdminID string

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
	logger *slog.Logger
}

// NewOperator wraps a freshly registered websocket connection.
func NewOperator(adminID string, ws *websocket.Conn, logger *slog.Logger) *Operator {
	return &Operator{
		ID:      uuid.NewString(),
		AdminID: adminID,
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		closed:  make(chan struct{}),
		logger:  logger,
	}
}

// Start launches the write pump. Call exactly once per operator.
func (o *Operator) Start() {
	go o.writePump()
}

// Send enqueues a frame for delivery, preserving per-operator FIFO order.
// A full buffer means the console stopped draining; the connection is
// closed so backpressure stays bounded.
func (o *Operator) Send(frame []byte) error {
	select {
	case <-o.closed:
		return errOperatorClosed
	case o.send <- frame:
		return nil
	default:
		o.Close()
		return errors.New("operator send buffer full")
	}
}

// Close tears the connection down. Safe to call multiple times and from
// any goroutine.
func (o *Operator) Close() {
	o.once.Do(func() {
		close(o.closed)
		deadline := time.Now().Add(writeWait)
		_ = o.ws.SetWriteDeadline(deadline)
		_ = o.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
		_ = o.ws.Close()
	})
}

func (o *Operator) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.Close()
	}()

	for {
		select {
		case <-o.closed:
			return
		case frame := <-o.send:
			if err := o.writeFrame(frame); err != nil {
				o.logger.Debug("operator write failed",
					"admin_id", o.AdminID,
					"connection_id", o.ID,
					"error", err,
				)
				return
			}
		case <-ticker.C:
			if err := o.writePing(); err != nil {
				return
			}
		}
	}
}

func (o *Operator) writeFrame(frame []byte) error {
	if err := o.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return o.ws.WriteMessage(websocket.TextMessage, frame)
}

func (o *Operator) writePing() error {
	if err := o.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return o.ws.WriteMessage(websocket.PingMessage, nil)
}
