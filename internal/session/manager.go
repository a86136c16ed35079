// Package session implements the local sign-in state machine.
//
// A session is just an email address kept in key-value storage; its presence
// unlocks the chat view. The conversation id issued by the backend is kept
// next to it so the next run continues the same backend conversation.
//
//	LoggedOut --Login(email)--> LoggedIn --Logout()--> LoggedOut
//	LoggedIn  --NewConversation()--> LoggedIn (conversation id cleared)
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wormchat/internal/logging"
	"wormchat/internal/store"
)

// Persisted keys.
const (
	KeyEmail          = "wormchat_email"
	KeyConversationID = "wormchat_conversation_id"
	KeyLastActive     = "wormchat_last_active"
)

// DefaultTimeout is the inactivity window after which a stored session expires.
const DefaultTimeout = 24 * time.Hour

var (
	// ErrEmailRequired is returned by Login for an empty or whitespace-only email.
	ErrEmailRequired = errors.New("Please enter your email address.")
	// ErrNotLoggedIn is returned by operations that need a signed-in user.
	ErrNotLoggedIn = errors.New("not logged in")
)

// State is the session state.
type State int

const (
	StateLoggedOut State = iota
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateLoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

// Manager owns the persisted session keys. It is the only writer of them.
type Manager struct {
	mu      sync.RWMutex
	kv      store.KV
	timeout time.Duration
	now     func() time.Time

	email          string
	conversationID string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the inactivity timeout. Zero disables expiry.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over kv. Call Restore to load persisted state.
func NewManager(kv store.KV, opts ...Option) *Manager {
	m := &Manager{
		kv:      kv,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads the session from storage. An expired session is cleared and
// restores as logged out. A stored email without a last-active stamp is accepted.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email, _, err := m.kv.Get(ctx, KeyEmail)
	if err != nil {
		return StateLoggedOut, fmt.Errorf("failed to read session: %w", err)
	}
	convID, _, err := m.kv.Get(ctx, KeyConversationID)
	if err != nil {
		return StateLoggedOut, fmt.Errorf("failed to read conversation id: %w", err)
	}

	email = strings.TrimSpace(email)
	if email == "" {
		m.email = ""
		m.conversationID = ""
		return StateLoggedOut, nil
	}

	if m.expiredLocked(ctx) {
		logging.Session("stored session expired", zap.String("email", email))
		logging.AuditSession(logging.AuditSessionExpired, email)
		m.email = ""
		m.conversationID = ""
		if err := m.clearLocked(ctx, KeyEmail, KeyConversationID, KeyLastActive); err != nil {
			return StateLoggedOut, err
		}
		return StateLoggedOut, nil
	}

	m.email = email
	m.conversationID = convID
	logging.SessionDebug("session restored",
		zap.String("email", email),
		zap.Bool("has_conversation", convID != ""))
	logging.AuditSession(logging.AuditSessionRestored, email)
	return StateLoggedIn, nil
}

func (m *Manager) expiredLocked(ctx context.Context) bool {
	if m.timeout <= 0 {
		return false
	}
	raw, ok, err := m.kv.Get(ctx, KeyLastActive)
	if err != nil || !ok || raw == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logging.Get(logging.CategorySession).Warn("unparseable last-active stamp", zap.String("value", raw))
		return false
	}
	return m.now().Sub(last) > m.timeout
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.email == "" {
		return StateLoggedOut
	}
	return StateLoggedIn
}

// Email returns the signed-in email, or "" when logged out.
func (m *Manager) Email() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.email
}

// ConversationID returns the current conversation id, or "" before the first exchange.
func (m *Manager) ConversationID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversationID
}

// Login signs in with email (trimmed) and persists it. Switching to a
// different email drops the stored conversation id.
func (m *Manager) Login(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if email != m.email {
		// A conversation belongs to the account that started it.
		if err := m.clearLocked(ctx, KeyConversationID); err != nil {
			return err
		}
		m.conversationID = ""
	}
	if err := m.kv.Set(ctx, KeyEmail, email); err != nil {
		return fmt.Errorf("failed to persist email: %w", err)
	}
	m.email = email
	if err := m.touchLocked(ctx); err != nil {
		return err
	}

	logging.Session("logged in", zap.String("email", email))
	logging.AuditSession(logging.AuditLogin, email)
	return nil
}

// Logout clears the persisted email and conversation id.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := m.email
	m.email = ""
	m.conversationID = ""
	if err := m.clearLocked(ctx, KeyEmail, KeyConversationID, KeyLastActive); err != nil {
		return err
	}

	logging.Session("logged out", zap.String("email", email))
	logging.AuditSession(logging.AuditLogout, email)
	return nil
}

// NewConversation clears only the conversation id; the session stays signed in.
func (m *Manager) NewConversation(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.email == "" {
		return ErrNotLoggedIn
	}
	m.conversationID = ""
	if err := m.clearLocked(ctx, KeyConversationID); err != nil {
		return err
	}

	logging.Session("new conversation", zap.String("email", m.email))
	logging.AuditSession(logging.AuditConversationNew, m.email)
	return nil
}

// SetConversationID persists the id returned by the backend. An empty id is ignored.
func (m *Manager) SetConversationID(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.email == "" {
		return ErrNotLoggedIn
	}
	if id == m.conversationID {
		return nil
	}
	if err := m.kv.Set(ctx, KeyConversationID, id); err != nil {
		return fmt.Errorf("failed to persist conversation id: %w", err)
	}
	m.conversationID = id
	logging.SessionDebug("conversation id updated", zap.String("conversation", id))
	return nil
}

// Touch records activity for session expiry.
func (m *Manager) Touch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.email == "" {
		return ErrNotLoggedIn
	}
	return m.touchLocked(ctx)
}

func (m *Manager) touchLocked(ctx context.Context) error {
	stamp := m.now().UTC().Format(time.RFC3339)
	if err := m.kv.Set(ctx, KeyLastActive, stamp); err != nil {
		return fmt.Errorf("failed to persist last-active: %w", err)
	}
	return nil
}

func (m *Manager) clearLocked(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := m.kv.Remove(ctx, k); err != nil {
			return fmt.Errorf("failed to clear %s: %w", k, err)
		}
	}
	return nil
}
