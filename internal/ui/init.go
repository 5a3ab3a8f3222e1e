package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"plaichat/internal/conversation"
	"plaichat/internal/i18n"
	"plaichat/internal/logger"
	"plaichat/internal/session"
	"plaichat/internal/styles"
)

// New builds the model around an initialised session. The active thread's
// messages seed the conversation.
func New(ctx context.Context, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Translator == nil {
		opts.Translator = i18n.For("en")
	}

	ti := textarea.New()
	ti.Placeholder = opts.Translator.T("message_placeholder")
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	search := textinput.New()
	search.Placeholder = opts.Translator.T("search_conversations")
	search.Prompt = "/ "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB"))

	m := &Model{
		Viewport:      viewport.New(60, 15),
		TextInput:     ti,
		Spinner:       sp,
		ThreadSearch:  search,
		ctx:           ctx,
		sess:          opts.Session,
		conv:          opts.Conversation,
		rater:         opts.Rater,
		store:         opts.Store,
		tr:            opts.Translator,
		log:           opts.Logger.WithComponent("ui"),
		titleClient:   opts.TitleClient,
		titles:        map[string]string{},
		titlesPending: map[string]bool{},
		initialPrompt: opts.InitialPrompt,
	}

	if active := m.sess.ActiveThread(); active != nil {
		m.conv.Replace(active.Messages)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.TextInput.Cursor.BlinkCmd(), m.Spinner.Tick}
	if m.sess.ActiveThread() == nil {
		cmds = append(cmds, m.newThreadCmd())
	}
	if m.initialPrompt != "" {
		text := m.initialPrompt
		cmds = append(cmds, func() tea.Msg { return submitMsg{Text: text} })
	}
	return tea.Batch(cmds...)
}

// Run drives the TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Bridge == nil {
		opts.Bridge = &Bridge{}
	}
	styles.InitTheme()

	m := New(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	opts.Bridge.Attach(p)

	unsubscribe := opts.Session.Subscribe(func(ch session.Change) {
		opts.Bridge.Send(sessionChangedMsg{Change: ch})
	})
	defer unsubscribe()

	opts.Conversation.OnRestart(func(req conversation.RestartRequired) {
		opts.Bridge.Send(restartMsg{Req: req})
	})
	defer opts.Conversation.OnRestart(nil)

	forwardCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		for {
			select {
			case <-forwardCtx.Done():
				return
			case <-opts.Conversation.Changes():
				p.Send(conversationChangedMsg{})
			}
		}
	}()

	_, err := p.Run()
	if abortErr := opts.Conversation.Abort(); abortErr == nil {
		m.log.Info("aborted stream on exit")
	}
	return err
}
