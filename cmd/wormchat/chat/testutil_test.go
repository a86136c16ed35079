package chat

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"wormchat/internal/conversation"
	"wormchat/internal/session"
	"wormchat/internal/store"
	"wormchat/internal/transport"
)

// fakeSender replays a scripted outcome and records requests.
type fakeSender struct {
	mu       sync.Mutex
	requests []transport.Request
	resp     *transport.Response
	err      error
}

func (f *fakeSender) Send(_ context.Context, req transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// testEnv bundles the model with the state behind it.
type testEnv struct {
	kv      store.KV
	session *session.Manager
	sender  *fakeSender
	events  chan string
}

// TestModelOption configures NewTestModel.
type TestModelOption func(*testOptions)

type testOptions struct {
	email  string
	sender *fakeSender
	events bool
}

// WithLoggedIn signs the session in before the model is built.
func WithLoggedIn(email string) TestModelOption {
	return func(o *testOptions) { o.email = email }
}

// WithSender replaces the default successful sender.
func WithSender(s *fakeSender) TestModelOption {
	return func(o *testOptions) { o.sender = s }
}

// WithStoreEvents attaches an external-change channel.
func WithStoreEvents() TestModelOption {
	return func(o *testOptions) { o.events = true }
}

// NewTestModel creates a sized model over an in-memory store.
func NewTestModel(t *testing.T, opts ...TestModelOption) (Model, *testEnv) {
	t.Helper()

	o := testOptions{
		sender: &fakeSender{resp: &transport.Response{ID: "conv-1", OutputText: "**hi** there"}},
	}
	for _, opt := range opts {
		opt(&o)
	}

	kv := store.NewMemoryStore()
	sess := session.NewManager(kv)
	if o.email != "" {
		require.NoError(t, sess.Login(context.Background(), o.email))
	}

	env := &testEnv{kv: kv, session: sess, sender: o.sender}
	cfg := Config{
		Session:    sess,
		Controller: conversation.NewController(o.sender, sess),
		Theme:      "light",
		BaseURL:    "http://localhost:7071",
	}
	if o.events {
		env.events = make(chan string, 4)
		cfg.StoreEvents = env.events
	}

	m := New(cfg)
	t.Cleanup(m.shutdownCancel)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), env
}

// update feeds msg through Update and returns the concrete model.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return model, cmd
}

// key builds a key message for a special key.
func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

// findExchangeResult runs cmd (and any batch it returns) and returns the
// exchange result it produces.
func findExchangeResult(t *testing.T, cmd tea.Cmd) exchangeResultMsg {
	t.Helper()
	require.NotNil(t, cmd)

	pending := []tea.Cmd{cmd}
	for len(pending) > 0 {
		c := pending[0]
		pending = pending[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case exchangeResultMsg:
			return msg
		case tea.BatchMsg:
			pending = append(pending, msg...)
		}
	}
	t.Fatal("no exchange result produced")
	return exchangeResultMsg{}
}
