// ABOUTME: Wire-protocol frame shapes exchanged with admin consoles.
// ABOUTME: JSON text frames; field names are a compatibility contract with the console UI.

package relay

import (
	"encoding/json"
	"time"

	"github.com/solveighty/restaurant-mechita-sub000/internal/chat"
)

// Frame types understood on the operator connection.
const (
	TypeAdminRegister = "admin_register"
	TypeChatMessage   = "chat_message"
	TypeActiveChats   = "active_chats"
	TypeNewChat       = "new_chat"
	TypeEndChat       = "end_chat"
)

// InboundFrame is a frame sent by an operator console.
type InboundFrame struct {
	Type    string `json:"type"`
	AdminID string `json:"adminId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

// WireMessage is one history entry as shown to operators.
type WireMessage struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatState is one conversation inside an active_chats frame.
type ChatState struct {
	UserID       string        `json:"userId"`
	Username     string        `json:"username"`
	ActualUserID string        `json:"actualUserId"`
	Messages     []WireMessage `json:"messages"`
}

type activeChatsFrame struct {
	Type  string      `json:"type"`
	Chats []ChatState `json:"chats"`
}

type chatEventFrame struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	ActualUserID string `json:"actualUserId"`
	Message      string `json:"message,omitempty"`
}

func toChatState(conv *chat.Conversation) ChatState {
	messages := make([]WireMessage, len(conv.Messages))
	for i, msg := range conv.Messages {
		messages[i] = WireMessage{
			Sender:    string(msg.Sender),
			Message:   msg.Text,
			Timestamp: msg.SentAt,
		}
	}
	return ChatState{
		UserID:       conv.Key,
		Username:     conv.DisplayName,
		ActualUserID: conv.AccountID,
		Messages:     messages,
	}
}

// encodeActiveChats builds the full-state bootstrap frame. The chats array
// is always present, even when empty.
func encodeActiveChats(convs []*chat.Conversation) ([]byte, error) {
	chats := make([]ChatState, len(convs))
	for i, conv := range convs {
		chats[i] = toChatState(conv)
	}
	return json.Marshal(activeChatsFrame{Type: TypeActiveChats, Chats: chats})
}

func encodeNewChat(conv *chat.Conversation, text string) ([]byte, error) {
	return json.Marshal(chatEventFrame{
		Type:         TypeNewChat,
		UserID:       conv.Key,
		Username:     conv.DisplayName,
		ActualUserID: conv.AccountID,
		Message:      text,
	})
}

func encodeChatMessage(conv *chat.Conversation, text string) ([]byte, error) {
	return json.Marshal(chatEventFrame{
		Type:         TypeChatMessage,
		UserID:       conv.Key,
		Username:     conv.DisplayName,
		ActualUserID: conv.AccountID,
		Message:      text,
	})
}

func encodeEndChat(conv *chat.Conversation) ([]byte, error) {
	return json.Marshal(chatEventFrame{
		Type:         TypeEndChat,
		UserID:       conv.Key,
		Username:     conv.DisplayName,
		ActualUserID: conv.AccountID,
	})
}
