// ABOUTME: In-memory registry of active support conversations for one platform.
// ABOUTME: Single lifecycle owner for conversation state and ordered message history.

package chat

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyActive indicates a conversation with the same key is already open.
var ErrAlreadyActive = errors.New("conversation already active")

// ErrNotFound indicates no active conversation exists for the key.
var ErrNotFound = errors.New("conversation not found")

// Role identifies which side of a conversation authored a message.
type Role string

const (
	// RoleUser marks a message written by the end user.
	RoleUser Role = "user"
	// RoleAdmin marks a message written by an operator.
	RoleAdmin Role = "admin"
)

// Message is one entry in a conversation's history. Insertion order is
// chronological and never reordered.
type Message struct {
	Sender Role
	Text   string
	SentAt time.Time
}

// Conversation is one active support session between an end user and the
// operator pool.
type Conversation struct {
	// Key is the platform-namespaced conversation identifier, e.g. "tg_12345".
	Key string

	// DisplayName is the human-readable label shown to operators.
	DisplayName string

	// AccountID is the business-domain user identifier, distinct from the
	// messaging-platform id.
	AccountID string

	Messages  []Message
	Active    bool
	StartedAt time.Time
}

// clone returns a deep copy so callers never observe later mutations.
func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// Registry holds every active conversation for one platform instance.
// Conversations live only in memory; process restart drops them.
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	logger        *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conversations: make(map[string]*Conversation),
		logger:        logger.With("component", "chat-registry"),
	}
}

// Start opens a new conversation for the key. Returns ErrAlreadyActive if
// one is already open; a second start is rejected, never merged.
func (r *Registry) Start(key, displayName, accountID string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conversations[key]; ok && existing.Active {
		return nil, ErrAlreadyActive
	}

	conv := &Conversation{
		Key:         key,
		DisplayName: displayName,
		AccountID:   accountID,
		Messages:    []Message{},
		Active:      true,
		StartedAt:   time.Now(),
	}
	r.conversations[key] = conv

	r.logger.Info("conversation started",
		"conversation_key", key,
		"display_name", displayName,
		"account_id", accountID,
		"total_active", len(r.conversations),
	)
	return conv.clone(), nil
}

// End closes the conversation and removes it from the registry, returning
// its final state. History is discarded; there is no archival here.
func (r *Registry) End(key string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[key]
	if !ok || !conv.Active {
		return nil, ErrNotFound
	}
	delete(r.conversations, key)

	final := conv.clone()
	final.Active = false

	r.logger.Info("conversation ended",
		"conversation_key", key,
		"messages", len(final.Messages),
		"total_active", len(r.conversations),
	)
	return final, nil
}

// AppendUserMessage records an end-user message on the active conversation.
func (r *Registry) AppendUserMessage(key, text string) (Message, error) {
	return r.append(key, RoleUser, text)
}

// AppendAdminMessage records an operator message on the active conversation.
func (r *Registry) AppendAdminMessage(key, text string) (Message, error) {
	return r.append(key, RoleAdmin, text)
}

func (r *Registry) append(key string, sender Role, text string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[key]
	if !ok || !conv.Active {
		return Message{}, ErrNotFound
	}

	msg := Message{
		Sender: sender,
		Text:   text,
		SentAt: time.Now(),
	}
	conv.Messages = append(conv.Messages, msg)
	return msg, nil
}

// Get returns a copy of the active conversation for the key, if any.
func (r *Registry) Get(key string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[key]
	if !ok || !conv.Active {
		return nil, false
	}
	return conv.clone(), true
}

// SnapshotActive returns a point-in-time copy of every active conversation,
// ordered by start time. Used to bootstrap a newly registered operator; the
// copy is taken under the registry lock so no conversation is observed
// half-updated.
func (r *Registry) SnapshotActive() []*Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		snapshot = append(snapshot, conv.clone())
	}
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].StartedAt.Equal(snapshot[j].StartedAt) {
			return snapshot[i].Key < snapshot[j].Key
		}
		return snapshot[i].StartedAt.Before(snapshot[j].StartedAt)
	})
	return snapshot
}
