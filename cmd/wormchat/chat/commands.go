package chat

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"wormchat/internal/conversation"
	"wormchat/internal/logging"
	"wormchat/internal/store"
)

// runExchange performs the network call off the update loop.
func runExchange(ctx context.Context, ex *conversation.Exchange) tea.Cmd {
	return func() tea.Msg {
		resp, err := ex.Do(ctx)
		return exchangeResultMsg{ex: ex, resp: resp, err: err}
	}
}

// waitForStoreChange blocks until another process writes a key.
func (m Model) waitForStoreChange() tea.Cmd {
	ch := m.storeEvents
	return func() tea.Msg {
		key, ok := <-ch
		if !ok {
			return storeClosedMsg{}
		}
		return storeChangedMsg{key: key}
	}
}

// WatchStore forwards keys changed by other processes until ctx is done,
// then closes the returned channel.
func WatchStore(ctx context.Context, w store.Watcher) <-chan string {
	ch := make(chan string, 8)
	go func() {
		defer close(ch)
		err := w.Watch(ctx, func(key string) {
			select {
			case ch <- key:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			logging.Get(logging.CategoryStore).Warn("store watch stopped", zap.Error(err))
		}
	}()
	return ch
}

// slash commands
const (
	cmdNew    = "/new"
	cmdLogout = "/logout"
	cmdHelp   = "/help"
	cmdQuit   = "/quit"
)

// handleSlashCommand runs input starting with "/". It reports false when the
// input is not a known command and should be sent as a message.
func (m Model) handleSlashCommand(input string) (Model, tea.Cmd, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return m, nil, false
	}

	switch strings.ToLower(fields[0]) {
	case cmdNew:
		m.textarea.Reset()
		next, cmd := m.newConversation()
		return next, cmd, true
	case cmdLogout:
		next, cmd := m.logout()
		return next, cmd, true
	case cmdHelp:
		m.textarea.Reset()
		m.showHelp = !m.showHelp
		m.refreshViewport()
		return m, nil, true
	case cmdQuit, "/exit":
		m.shutdownCancel()
		return m, tea.Quit, true
	}
	return m, nil, false
}

// helpText lists keys and commands.
func (m Model) helpText() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Bold.Render("Keys"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(strings.Join([]string{
		"  Enter       send message",
		"  Alt+Enter   new line",
		"  Ctrl+N      new conversation",
		"  Ctrl+O      log out",
		"  PgUp/PgDn   scroll",
		"  Ctrl+C/Esc  quit",
	}, "\n")))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Bold.Render("Commands"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(strings.Join([]string{
		"  /new     start a new conversation",
		"  /logout  log out",
		"  /help    toggle this help",
		"  /quit    exit",
	}, "\n")))
	sb.WriteString("\n")
	if m.baseURL != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Info.Render(fmt.Sprintf("Backend: %s", m.baseURL)))
		sb.WriteString("\n")
	}
	return sb.String()
}
