// ABOUTME: Integration tests driving the relay server over real websockets.
// ABOUTME: Covers registration bootstrap, outbound relay, fan-out, and stale sends.

package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
)

type capturingSender struct {
	mu    sync.Mutex
	keys  []string
	texts []string
}

func (c *capturingSender) SendText(_ context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.texts = append(c.texts, text)
	return nil
}

func (c *capturingSender) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func newTestServer(t *testing.T) (*Server, *chat.Registry, *capturingSender, string) {
	t.Helper()
	reg := chat.NewRegistry(nil)
	sender := &capturingSender{}
	srv := NewServer(ServerConfig{Platform: "telegram", Addr: ":0"}, reg, sender, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return srv, reg, sender, wsURL
}

func dialOperator(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func registerOperator(t *testing.T, ws *websocket.Conn, adminID string) {
	t.Helper()
	err := ws.WriteJSON(InboundFrame{Type: TypeAdminRegister, AdminID: adminID})
	require.NoError(t, err)
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestServer_RegisterReceivesEmptyActiveChats(t *testing.T) {
	_, _, _, wsURL := newTestServer(t)

	ws := dialOperator(t, wsURL)
	registerOperator(t, ws, "admin-1")

	frame := readFrame(t, ws)
	assert.Equal(t, "active_chats", frame["type"])
	chats, ok := frame["chats"].([]any)
	require.True(t, ok, "chats array must be present even when empty")
	assert.Empty(t, chats)
}

func TestServer_LateRegistrationSeesFullHistory(t *testing.T) {
	srv, reg, _, wsURL := newTestServer(t)

	first := dialOperator(t, wsURL)
	registerOperator(t, first, "admin-1")
	readFrame(t, first) // bootstrap

	conv, err := reg.Start("tg_12345", "Maria", "acct-7")
	require.NoError(t, err)
	srv.ConversationStarted(conv, "/chat")
	readFrame(t, first) // new_chat

	msg, err := reg.AppendUserMessage("tg_12345", "Hello, is my order ready?")
	require.NoError(t, err)
	conv, _ = reg.Get("tg_12345")
	srv.UserMessage(conv, msg)
	readFrame(t, first) // chat_message

	// Second operator joins mid-conversation.
	second := dialOperator(t, wsURL)
	registerOperator(t, second, "admin-2")
	frame := readFrame(t, second)

	require.Equal(t, "active_chats", frame["type"])
	chats := frame["chats"].([]any)
	require.Len(t, chats, 1)
	state := chats[0].(map[string]any)
	assert.Equal(t, "tg_12345", state["userId"])
	assert.Equal(t, "Maria", state["username"])
	assert.Equal(t, "acct-7", state["actualUserId"])
	messages := state["messages"].([]any)
	require.Len(t, messages, 1)
	entry := messages[0].(map[string]any)
	assert.Equal(t, "user", entry["sender"])
	assert.Equal(t, "Hello, is my order ready?", entry["message"])
}

func TestServer_EventsFanOutToAllOperators(t *testing.T) {
	srv, reg, _, wsURL := newTestServer(t)

	consoles := make([]*websocket.Conn, 3)
	for i := range consoles {
		consoles[i] = dialOperator(t, wsURL)
		registerOperator(t, consoles[i], "admin-"+string(rune('1'+i)))
		readFrame(t, consoles[i])
	}
	require.Eventually(t, func() bool { return srv.Operators().Count() == 3 },
		time.Second, 10*time.Millisecond)

	conv, err := reg.Start("tg_9", "Pedro", "acct-3")
	require.NoError(t, err)
	srv.ConversationStarted(conv, "/chat")

	for _, ws := range consoles {
		frame := readFrame(t, ws)
		assert.Equal(t, "new_chat", frame["type"])
		assert.Equal(t, "Pedro", frame["username"])
	}
}

func TestServer_OperatorMessageRelayedToEndUser(t *testing.T) {
	_, reg, sender, wsURL := newTestServer(t)

	_, err := reg.Start("tg_12345", "Maria", "acct-7")
	require.NoError(t, err)

	ws := dialOperator(t, wsURL)
	registerOperator(t, ws, "admin-1")
	readFrame(t, ws)

	err = ws.WriteJSON(InboundFrame{Type: TypeChatMessage, UserID: "tg_12345", Message: "Yes, 10 minutes"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conv, ok := reg.Get("tg_12345")
		return ok && len(conv.Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conv, _ := reg.Get("tg_12345")
	assert.Equal(t, chat.RoleAdmin, conv.Messages[0].Sender)
	assert.Equal(t, "Yes, 10 minutes", conv.Messages[0].Text)

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Admin: Yes, 10 minutes", sender.sent()[0])
}

func TestServer_StaleOperatorMessageIsSilentNoOp(t *testing.T) {
	_, reg, sender, wsURL := newTestServer(t)

	ws := dialOperator(t, wsURL)
	registerOperator(t, ws, "admin-1")
	readFrame(t, ws)

	err := ws.WriteJSON(InboundFrame{Type: TypeChatMessage, UserID: "tg_404", Message: "anyone there?"})
	require.NoError(t, err)

	// The connection stays healthy: a follow-up register still answers.
	registerOperator(t, ws, "admin-1")
	frame := readFrame(t, ws)
	assert.Equal(t, "active_chats", frame["type"])

	_, ok := reg.Get("tg_404")
	assert.False(t, ok)
	assert.Empty(t, sender.sent(), "no outbound send for a stale key")
}

func TestServer_ReconnectReplacesHandleAndBootstraps(t *testing.T) {
	srv, _, _, wsURL := newTestServer(t)

	old := dialOperator(t, wsURL)
	registerOperator(t, old, "admin-1")
	readFrame(t, old)

	fresh := dialOperator(t, wsURL)
	registerOperator(t, fresh, "admin-1")
	frame := readFrame(t, fresh)
	assert.Equal(t, "active_chats", frame["type"])

	require.Eventually(t, func() bool { return srv.Operators().Count() == 1 },
		time.Second, 10*time.Millisecond)

	// The replaced handle is closed server-side; its next read fails once
	// the close frame arrives.
	require.NoError(t, old.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}
}

func TestServer_DisconnectRemovesOperatorOnly(t *testing.T) {
	srv, reg, _, wsURL := newTestServer(t)

	_, err := reg.Start("tg_1", "Maria", "acct-7")
	require.NoError(t, err)

	ws := dialOperator(t, wsURL)
	registerOperator(t, ws, "admin-1")
	readFrame(t, ws)
	require.Eventually(t, func() bool { return srv.Operators().Count() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return srv.Operators().Count() == 0 },
		2*time.Second, 10*time.Millisecond)

	// An admin disconnecting never implicitly ends a user's session.
	_, ok := reg.Get("tg_1")
	assert.True(t, ok)
}
