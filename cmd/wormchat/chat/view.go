package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"wormchat/cmd/wormchat/ui"
	"wormchat/internal/conversation"
	"wormchat/internal/logging"
)

const (
	headerLines = 2 // title bar + divider
	footerLines = 1
	minViewport = 3
)

func (m Model) View() string {
	if m.viewMode == LoginView {
		return m.renderLogin()
	}

	sections := []string{m.renderHeader(), m.viewport.View()}
	if panel := m.renderErrorPanel(); panel != "" {
		sections = append(sections, panel)
	}
	sections = append(sections, m.styles.InputBox.Width(m.inputWidth()).Render(m.textarea.View()))
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderLogin draws the centered sign-in card.
func (m Model) renderLogin() string {
	var sb strings.Builder
	if logo := ui.Logo(m.styles); lipgloss.Width(logo)+8 <= m.width {
		sb.WriteString(logo)
	} else {
		sb.WriteString(m.styles.Title.Render(appTitle))
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Subtitle.Render(loginPrompt))
	sb.WriteString("\n\n")
	sb.WriteString(m.emailInput.View())
	if m.loginErr != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Error.Render(m.loginErr))
	}
	if m.notice != "" {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Warning.Render(m.notice))
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Muted.Render("Enter to log in • Esc to quit"))

	card := m.styles.LoginBox.Render(sb.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, card)
}

// renderHeader shows the title, the signed-in email and the request status.
func (m Model) renderHeader() string {
	left := m.styles.Header.Render(appTitle) + " " + m.styles.Muted.Render(m.session.Email())
	if id := m.session.ConversationID(); id != "" {
		left += " " + m.styles.Badge.Render(shortID(id))
	}

	var right string
	if m.controller.IsLoading() {
		right = m.spinner.View() + " " + m.styles.Muted.Render("Thinking...")
	} else {
		right = m.styles.Success.Render("Ready")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right + "\n" + m.styles.RenderDivider(m.width)
}

// renderErrorPanel shows the last exchange error or a notice, or "".
func (m Model) renderErrorPanel() string {
	if text := m.controller.Err(); text != "" {
		return m.styles.ErrorPanel.Width(m.inputWidth()).Render(text)
	}
	if m.notice != "" {
		return m.styles.Warning.Render(m.notice)
	}
	return ""
}

func (m Model) renderFooter() string {
	return m.styles.Footer.Render("Enter send • Alt+Enter newline • Ctrl+N new • Ctrl+O logout • /help • Esc quit")
}

// renderHistory renders the message list for the viewport.
func (m Model) renderHistory() string {
	var sb strings.Builder

	if m.showHelp {
		sb.WriteString(m.helpText())
		sb.WriteString("\n")
	}

	messages := m.controller.Messages()
	if len(messages) == 0 {
		welcome := m.styles.Title.Render(welcomeTitle) + "\n" + m.styles.Subtitle.Render(welcomeBody)
		sb.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, welcome))
		return sb.String()
	}

	bodyWidth := m.width - 4
	if bodyWidth < 10 {
		bodyWidth = 10
	}

	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(m.styles.UserInput.Width(bodyWidth).Render(msg.Content))
		default:
			sb.WriteString(m.styles.AgentLabel.Render(appTitle))
			sb.WriteString("\n")
			sb.WriteString(m.styles.AgentResponse.Render(m.safeRenderMarkdown(msg.Content)))
		}
		sb.WriteString("\n\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// safeRenderMarkdown renders markdown through glamour and falls back to the
// raw text if the renderer is missing, fails or panics.
func (m Model) safeRenderMarkdown(content string) (out string) {
	if m.renderer == nil {
		return content
	}
	if cached, ok := m.renderedCache[content]; ok {
		return cached
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryUI).Error("markdown render panicked", zap.Any("panic", r))
			out = content
		}
	}()

	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	rendered = strings.Trim(rendered, "\n")
	if m.renderedCache != nil {
		m.renderedCache[content] = rendered
	}
	return rendered
}

// refreshViewport re-renders the history and scrolls to the newest message.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// resize lays out the chat view for the current terminal size.
func (m *Model) resize() {
	m.textarea.SetWidth(m.inputWidth() - 2)
	m.viewport.Width = m.width

	h := m.height - headerLines - footerLines - (inputHeight + 2)
	if panel := m.renderErrorPanel(); panel != "" {
		h -= lipgloss.Height(panel)
	}
	if h < minViewport {
		h = minViewport
	}
	m.viewport.Height = h
}

// shortID abbreviates a conversation id for the header badge.
func shortID(id string) string {
	r := []rune(id)
	if len(r) > 8 {
		return string(r[:8])
	}
	return id
}

func (m Model) inputWidth() int {
	w := m.width - 2
	if w < 10 {
		w = 10
	}
	return w
}
