// Package conversation holds the visible message list and drives one backend
// exchange at a time.
//
// The controller is UI-agnostic. An exchange is split into three steps so the
// TUI can run the network call off its update loop:
//
//	ex, err := c.Begin(text)   // validates, appends the user message, sets loading
//	resp, err := ex.Do(ctx)    // network call; touches no controller state
//	c.Complete(ctx, ex, resp, err)
//
// Send runs all three synchronously for the command line.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wormchat/internal/logging"
	"wormchat/internal/session"
	"wormchat/internal/transport"
)

// Role tags a message's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the visible conversation.
type Message struct {
	Role    Role
	Content string
	Time    time.Time
}

var (
	// ErrEmptyInput is returned by Begin for empty or whitespace-only input.
	ErrEmptyInput = errors.New("message is empty")
	// ErrBusy is returned by Begin while another exchange is outstanding.
	ErrBusy = errors.New("a request is already in progress")
	// ErrStale is returned by Complete for an exchange started before the
	// conversation was reset.
	ErrStale = errors.New("exchange belongs to a previous conversation")
)

// MsgFallback is shown for failures that carry no message of their own.
const MsgFallback = "An error occurred."

// Sender performs one backend exchange. *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Controller owns the message list, the loading flag and the last error.
type Controller struct {
	mu       sync.Mutex
	sender   Sender
	session  *session.Manager
	now      func() time.Time
	messages []Message
	loading  bool
	errText  string
	gen      uint64
	inflight *Exchange
}

// NewController creates a controller for the signed-in session.
func NewController(sender Sender, sess *session.Manager) *Controller {
	return &Controller{
		sender:  sender,
		session: sess,
		now:     time.Now,
	}
}

// Exchange is one outstanding request created by Begin.
type Exchange struct {
	sender Sender
	req    transport.Request
	gen    uint64

	// abandoned is cancelled when the controller resets, which aborts Do.
	abandoned context.Context
	abandon   context.CancelFunc
}

// Request returns the wire request this exchange will send.
func (e *Exchange) Request() transport.Request {
	return e.req
}

// Do performs the network call. It is aborted when ctx ends or when the
// controller resets before the call returns.
func (e *Exchange) Do(ctx context.Context) (*transport.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.abandoned, cancel)
	defer stop()
	return e.sender.Send(ctx, e.req)
}

// Begin validates text and starts an exchange: the user message is appended,
// the error cleared and the loading flag set. Empty input and a busy
// controller are rejected without any change.
func (c *Controller) Begin(text string) (*Exchange, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if text == "" {
		return nil, ErrEmptyInput
	}
	if c.loading {
		logging.UI("send rejected: request outstanding")
		return nil, ErrBusy
	}
	email := c.session.Email()
	if email == "" {
		return nil, session.ErrNotLoggedIn
	}

	c.messages = append(c.messages, Message{Role: RoleUser, Content: text, Time: c.now()})
	c.loading = true
	c.errText = ""

	abandoned, abandon := context.WithCancel(context.Background())
	ex := &Exchange{
		sender: c.sender,
		req: transport.Request{
			ID:          c.session.ConversationID(),
			MailAddress: email,
			ChatText:    text,
		},
		gen:       c.gen,
		abandoned: abandoned,
		abandon:   abandon,
	}
	c.inflight = ex
	return ex, nil
}

// Complete applies the outcome of ex. On success the assistant message is
// appended and the returned conversation id persisted; on failure the error
// text is recorded and no assistant message is added. The loading flag is
// cleared either way. Results of an exchange that predates a reset are
// discarded with ErrStale.
func (c *Controller) Complete(ctx context.Context, ex *Exchange, resp *transport.Response, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex.abandon()
	if ex.gen != c.gen {
		logging.UI("discarding result of a previous conversation")
		return ErrStale
	}
	c.loading = false
	c.inflight = nil

	if err != nil {
		c.errText = userMessage(err)
		return err
	}
	if resp == nil {
		c.errText = MsgFallback
		return errors.New(MsgFallback)
	}

	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: resp.OutputText, Time: c.now()})

	if serr := c.session.SetConversationID(ctx, resp.ID); serr != nil {
		logging.Get(logging.CategorySession).Warn("failed to persist conversation id", zap.Error(serr))
	}
	if serr := c.session.Touch(ctx); serr != nil {
		logging.Get(logging.CategorySession).Warn("failed to record activity", zap.Error(serr))
	}
	return nil
}

// Send runs Begin, Do and Complete synchronously. Validation errors from Begin
// are returned as-is; exchange errors are recorded and returned.
func (c *Controller) Send(ctx context.Context, text string) (*transport.Response, error) {
	ex, err := c.Begin(text)
	if err != nil {
		return nil, err
	}
	resp, err := ex.Do(ctx)
	if cerr := c.Complete(ctx, ex, resp, err); cerr != nil {
		return nil, cerr
	}
	return resp, nil
}

// NewConversation clears the message list and the persisted conversation id.
// The session stays signed in.
func (c *Controller) NewConversation(ctx context.Context) error {
	c.Reset()
	return c.session.NewConversation(ctx)
}

// Reset clears local state without touching storage. Any outstanding
// exchange is cancelled and its result becomes stale.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		c.inflight.abandon()
		c.inflight = nil
	}
	c.messages = nil
	c.loading = false
	c.errText = ""
	c.gen++
}

// Messages returns a copy of the message list.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// IsLoading reports whether an exchange is outstanding.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the text of the last failed exchange, or "".
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// ClearErr dismisses the error banner.
func (c *Controller) ClearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errText = ""
}

// userMessage maps an exchange error to banner text.
func userMessage(err error) string {
	var (
		ve *transport.ValidationError
		ue *transport.UpstreamServiceError
		xe *transport.UnexpectedError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ue):
		return ue.Error()
	case errors.As(err, &xe):
		return xe.Error()
	case err.Error() != "":
		return err.Error()
	default:
		return MsgFallback
	}
}
