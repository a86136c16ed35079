// Package chat implements the interactive WormChat terminal UI on bubbletea.
//
// The model has two views that follow the session state: LoginView collects
// an email, ChatView drives the conversation controller. Network calls run in
// tea.Cmds; their results come back as messages and are applied in Update.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"wormchat/cmd/wormchat/ui"
	"wormchat/internal/conversation"
	"wormchat/internal/session"
	"wormchat/internal/transport"
)

// Config wires the UI to the session and conversation state.
type Config struct {
	Session    *session.Manager
	Controller *conversation.Controller
	// StoreEvents delivers keys changed by other processes. Nil when the
	// storage backend cannot report external changes.
	StoreEvents <-chan string
	Theme       string // auto, light, dark
	BaseURL     string // shown in /help
}

// ViewMode selects the active screen.
type ViewMode int

const (
	LoginView ViewMode = iota
	ChatView
)

func (v ViewMode) String() string {
	switch v {
	case LoginView:
		return "login"
	case ChatView:
		return "chat"
	default:
		return "unknown"
	}
}

// UI text
const (
	appTitle         = "WormChat"
	loginPrompt      = "Enter your email address to start chatting with the AI assistant."
	emailPlaceholder = "example@email.com"
	inputPlaceholder = "Type a message..."
	welcomeTitle     = "Welcome to WormChat"
	welcomeBody      = "Type a message to start a conversation with the AI assistant."
	signedOutNotice  = "You were signed out from another window."
)

// Model is the bubbletea model.
type Model struct {
	// Widgets
	textarea   textarea.Model
	emailInput textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	styles     ui.Styles
	renderer   *glamour.TermRenderer

	// State
	session     *session.Manager
	controller  *conversation.Controller
	storeEvents <-chan string
	baseURL     string

	viewMode ViewMode
	loginErr string
	notice   string
	showHelp bool

	// Rendered assistant markdown keyed by source; cleared on resize.
	renderedCache map[string]string

	width  int
	height int
	ready  bool

	// Cancelled on quit; parent of every request context.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// exchangeResultMsg carries the outcome of one backend call.
type exchangeResultMsg struct {
	ex   *conversation.Exchange
	resp *transport.Response
	err  error
}

// storeChangedMsg reports a key written by another process.
type storeChangedMsg struct {
	key string
}

// storeClosedMsg reports that the store event channel was closed.
type storeClosedMsg struct{}
