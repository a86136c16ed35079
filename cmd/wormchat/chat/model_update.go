package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"wormchat/internal/conversation"
	"wormchat/internal/logging"
	"wormchat/internal/session"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.renderer = newRenderer(m.styles.Theme.IsDark, msg.Width)
		m.renderedCache = make(map[string]string)
		m.resize()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.shutdownCancel()
			return m, tea.Quit
		}
		if m.viewMode == LoginView {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)

	case spinner.TickMsg:
		if m.controller.IsLoading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case exchangeResultMsg:
		err := m.controller.Complete(m.shutdownCtx, msg.ex, msg.resp, msg.err)
		if errors.Is(err, conversation.ErrStale) {
			return m, nil
		}
		m.textarea.Focus()
		m.resize()
		m.refreshViewport()
		return m, textarea.Blink

	case storeChangedMsg:
		m.handleStoreChange(msg.key)
		return m, m.waitForStoreChange()

	case storeClosedMsg:
		return m, nil
	}

	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		return m.login()
	}
	var cmd tea.Cmd
	m.emailInput, cmd = m.emailInput.Update(msg)
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlN:
		return m.newConversation()
	case tea.KeyCtrlO:
		return m.logout()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyEnter:
		if msg.Alt {
			break
		}
		return m.submit()
	}

	// Input is disabled while a request is outstanding.
	if m.controller.IsLoading() {
		return m, nil
	}
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// login submits the email form.
func (m Model) login() (tea.Model, tea.Cmd) {
	if err := m.session.Login(m.shutdownCtx, m.emailInput.Value()); err != nil {
		m.loginErr = err.Error()
		return m, nil
	}
	m.controller.Reset()
	m.notice = ""
	m.enterChat()
	m.resize()
	return m, textarea.Blink
}

// submit sends the textarea contents, or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	input := m.textarea.Value()

	if strings.HasPrefix(strings.TrimSpace(input), "/") {
		if next, cmd, ok := m.handleSlashCommand(strings.TrimSpace(input)); ok {
			return next, cmd
		}
	}

	ex, err := m.controller.Begin(input)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput), errors.Is(err, conversation.ErrBusy):
		return m, nil
	case errors.Is(err, session.ErrNotLoggedIn):
		m.controller.Reset()
		m.enterLogin()
		return m, textinput.Blink
	case err != nil:
		m.notice = err.Error()
		return m, nil
	}

	m.textarea.Reset()
	m.textarea.Blur()
	m.showHelp = false
	m.notice = ""
	m.resize()
	m.refreshViewport()
	return m, tea.Batch(m.spinner.Tick, runExchange(m.shutdownCtx, ex))
}

// newConversation clears the messages and the stored conversation id.
func (m Model) newConversation() (Model, tea.Cmd) {
	m.notice = ""
	if err := m.controller.NewConversation(m.shutdownCtx); err != nil {
		logging.Get(logging.CategoryUI).Warn("new conversation failed", zap.Error(err))
		m.notice = err.Error()
	}
	m.showHelp = false
	m.textarea.Focus()
	m.resize()
	m.refreshViewport()
	return m, nil
}

// logout clears the session and returns to the login view.
func (m Model) logout() (Model, tea.Cmd) {
	m.controller.Reset()
	if err := m.session.Logout(m.shutdownCtx); err != nil {
		logging.Get(logging.CategoryUI).Warn("logout failed", zap.Error(err))
	}
	m.notice = ""
	m.enterLogin()
	return m, textinput.Blink
}

// handleStoreChange re-reads the session after another process wrote it.
func (m *Model) handleStoreChange(key string) {
	switch key {
	case session.KeyEmail, session.KeyConversationID, session.KeyLastActive:
	default:
		return
	}

	prevEmail := m.session.Email()
	state, err := m.session.Restore(m.shutdownCtx)
	if err != nil {
		logging.Get(logging.CategoryUI).Warn("failed to reload session", zap.Error(err))
		return
	}

	switch {
	case state == session.StateLoggedOut && m.viewMode == ChatView:
		logging.UI("signed out externally")
		m.controller.Reset()
		m.enterLogin()
		m.notice = signedOutNotice
	case state == session.StateLoggedIn && m.viewMode == LoginView:
		logging.UI("signed in externally", zap.String("email", m.session.Email()))
		m.controller.Reset()
		m.notice = ""
		m.enterChat()
	case state == session.StateLoggedIn && m.session.Email() != prevEmail:
		m.controller.Reset()
		m.refreshViewport()
	}
	m.resize()
}
