package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"wormchat/cmd/wormchat/ui"
	"wormchat/internal/logging"
	"wormchat/internal/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	inputHeight   = 3
)

// New builds the model. The session should already be restored; its state
// picks the initial view.
func New(cfg Config) Model {
	styles := ui.NewStyles(ui.DetectTheme(cfg.Theme))

	ta := textarea.New()
	ta.Placeholder = inputPlaceholder
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(defaultWidth - 4)
	ta.SetHeight(inputHeight)
	// Enter sends; Alt+Enter breaks the line.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")

	ti := textinput.New()
	ti.Placeholder = emailPlaceholder
	ti.Prompt = "> "
	ti.PromptStyle = styles.Prompt
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(defaultWidth, defaultHeight-10)

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		textarea:       ta,
		emailInput:     ti,
		viewport:       vp,
		spinner:        sp,
		styles:         styles,
		session:        cfg.Session,
		controller:     cfg.Controller,
		storeEvents:    cfg.StoreEvents,
		baseURL:        cfg.BaseURL,
		renderedCache:  make(map[string]string),
		width:          defaultWidth,
		height:         defaultHeight,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	m.renderer = newRenderer(styles.Theme.IsDark, defaultWidth)

	if cfg.Session.State() == session.StateLoggedIn {
		m.enterChat()
	} else {
		m.enterLogin()
	}
	return m
}

// Init starts the cursor blink and the store listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, textarea.Blink}
	if m.storeEvents != nil {
		cmds = append(cmds, m.waitForStoreChange())
	}
	return tea.Batch(cmds...)
}

// ViewMode returns the active screen.
func (m Model) ViewMode() ViewMode {
	return m.viewMode
}

// newRenderer builds the glamour renderer for the given wrap width. A nil
// renderer makes assistant messages fall back to plain text.
func newRenderer(dark bool, width int) *glamour.TermRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	wrap := width - 6
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		logging.Get(logging.CategoryUI).Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	return r
}

// enterLogin switches to the login view with a cleared form.
func (m *Model) enterLogin() {
	m.viewMode = LoginView
	m.loginErr = ""
	m.showHelp = false
	m.emailInput.Reset()
	m.emailInput.Focus()
	m.textarea.Blur()
	m.textarea.Reset()
}

// enterChat switches to the chat view with the input focused.
func (m *Model) enterChat() {
	m.viewMode = ChatView
	m.loginErr = ""
	m.emailInput.Blur()
	m.textarea.Focus()
	m.refreshViewport()
}

// RunInteractiveChat runs the TUI until the user quits.
func RunInteractiveChat(cfg Config) error {
	model := New(cfg)
	defer model.shutdownCancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
