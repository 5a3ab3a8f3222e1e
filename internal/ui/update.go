package ui

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"plaichat/internal/conversation"
	"plaichat/internal/linktitle"
	"plaichat/internal/models"
	"plaichat/internal/session"
	"plaichat/internal/styles"
	"plaichat/internal/tokens"
	"plaichat/internal/tools"
)

const noticeTTL = 4 * time.Second

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		var spCmd tea.Cmd
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.conv.State() == conversation.Streaming {
			m.UpdateViewport()
		}
		return m, spCmd

	case tea.KeyMsg:
		if m.ThreadsOpen {
			return m.updateThreadsModal(msg)
		}
		if m.ToolsOpen {
			return m.updateToolsModal(msg)
		}
		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc, tea.KeyCtrlX:
			if err := m.conv.Abort(); err != nil && !errors.Is(err, conversation.ErrNotStreaming) {
				return m, m.notice(err.Error())
			}
			m.UpdateViewport()
			return m, nil

		case tea.KeyCtrlN:
			return m, m.newThreadCmd()

		case tea.KeyCtrlR:
			return m, m.resubmit()

		case tea.KeyCtrlU:
			return m, m.rateCmd(models.RatingPositive)

		case tea.KeyCtrlD:
			return m, m.rateCmd(models.RatingNegative)

		case tea.KeyCtrlT:
			m.ToolsOpen = true
			m.ToolIdx = 0
			return m, nil

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			return m, nil

		case tea.KeyCtrlH:
			m.ThreadsOpen = true
			m.ThreadIdx = 0
			m.ThreadPage = 0
			m.ThreadSearch.Reset()
			m.ThreadSearch.Focus()
			m.TextInput.Blur()
			return m, m.refreshThreadsCmd()

		case tea.KeyEnter:
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			m.TextInput.Reset()
			m.updateInputLayout()
			return m, m.submit(input)
		}

	case submitMsg:
		return m, m.submit(msg.Text)

	case conversationChangedMsg:
		m.UpdateViewport()
		return m, m.titleCmds()

	case sessionChangedMsg:
		switch msg.Change.Kind {
		case session.Touched:
			return m, m.refreshThreadsCmd()
		case session.ThreadsUpdated:
			m.clampThreadIdx()
		}
		m.UpdateViewport()
		return m, nil

	case threadLoadedMsg:
		if msg.Err != nil {
			m.log.Warn("loading thread", "error", msg.Err)
			return m, m.notice(m.tr.T("thread_create_failed"))
		}
		m.conv.Replace(msg.Thread.Messages)
		m.ThreadsOpen = false
		m.TextInput.Focus()
		m.UpdateViewport()
		return m, nil

	case threadDeletedMsg:
		if msg.Err != nil {
			m.log.Warn("deleting thread", "thread_id", msg.ID, "error", msg.Err)
			return m, m.notice(m.tr.T("thread_delete_failed"))
		}
		if active := m.sess.ActiveThread(); active != nil && active.ID != msg.ID {
			m.conv.Replace(active.Messages)
		}
		m.clampThreadIdx()
		return m, m.notice(m.tr.T("chat_deleted"))

	case ratedMsg:
		if msg.Err != nil {
			m.log.Warn("rating message", "error", msg.Err)
			return m, m.notice(m.tr.T("rating_failed"))
		}
		if msg.Rating == models.RatingPositive {
			return m, m.notice(m.tr.T("rated_positive"))
		}
		return m, m.notice(m.tr.T("rated_negative"))

	case restartMsg:
		return m, tea.Batch(m.notice(m.tr.T("restarting_session")), m.restartCmd(msg.Req))

	case sessionReadyMsg:
		if msg.Err != nil {
			return m, m.notice(msg.Err.Error())
		}
		if active := m.sess.ActiveThread(); active != nil {
			m.conv.Replace(active.Messages)
		}
		m.UpdateViewport()
		return m, nil

	case titleMsg:
		delete(m.titlesPending, msg.URL)
		m.titles[msg.URL] = msg.Title
		if msg.Title != "" {
			m.UpdateViewport()
		}
		return m, nil

	case noticeMsg:
		return m, m.notice(string(msg))

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.Notice = ""
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height

		ModalWidth = min(max(msg.Width-10, 30), 60)
		styles.ContentWidth = ModalWidth - 6

		chatWidth := min(msg.Width-2, MaxChatWidth)
		m.Viewport.Width = chatWidth - 2

		m.updateInputLayout()
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath(styles.GlamourStyle()),
			glamour.WithWordWrap(chatWidth-6),
		)
		m.UpdateViewport()
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Terminal background queries sometimes leak into the input.
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) updateThreadsModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visibleThreads()
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+h":
		m.ThreadsOpen = false
		m.ThreadSearch.Blur()
		m.TextInput.Focus()
		return m, nil
	case "up":
		if len(visible) > 0 {
			m.ThreadIdx = (m.ThreadIdx - 1 + len(visible)) % len(visible)
		}
		return m, nil
	case "down":
		if len(visible) > 0 {
			m.ThreadIdx = (m.ThreadIdx + 1) % len(visible)
		}
		return m, nil
	case "left":
		if m.ThreadPage > 0 {
			m.ThreadPage--
			m.ThreadIdx = 0
		}
		return m, nil
	case "right":
		if (m.ThreadPage+1)*ThreadPageSize < len(m.filteredThreads()) {
			m.ThreadPage++
			m.ThreadIdx = 0
		}
		return m, nil
	case "enter":
		if len(visible) == 0 {
			return m, nil
		}
		return m, m.loadThreadCmd(visible[m.ThreadIdx].ID)
	case "ctrl+n":
		m.ThreadsOpen = false
		m.TextInput.Focus()
		return m, m.newThreadCmd()
	case "ctrl+d", "delete":
		if len(visible) == 0 {
			return m, nil
		}
		return m, m.deleteThreadCmd(visible[m.ThreadIdx].ID)
	}

	var cmd tea.Cmd
	before := m.ThreadSearch.Value()
	m.ThreadSearch, cmd = m.ThreadSearch.Update(msg)
	if m.ThreadSearch.Value() != before {
		m.ThreadIdx = 0
		m.ThreadPage = 0
	}
	return m, cmd
}

func (m *Model) updateToolsModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	catalog := m.catalog()
	n := len(catalog.Tools())
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+t":
		m.ToolsOpen = false
	case "up", "k":
		if n > 0 {
			m.ToolIdx = (m.ToolIdx - 1 + n) % n
		}
	case "down", "j":
		if n > 0 {
			m.ToolIdx = (m.ToolIdx + 1) % n
		}
	case " ", "enter":
		if n == 0 {
			return m, nil
		}
		agentID := m.agentID()
		id := catalog.Tools()[m.ToolIdx].ID
		selection := tools.Toggle(m.sess.EnabledTools(agentID, catalog.Tools()), id)
		m.sess.SetEnabledTools(agentID, catalog.Filter(selection))
	}
	return m, nil
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := max(m.WindowWidth-6, 20)
	contentWidth := max(inputWidth-2, 1)

	const maxInputHeight = 6
	lineCount := min(max(WrappedLineCount(m.TextInput.Value(), contentWidth), 1), maxInputHeight)

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 6
	m.Viewport.Height = max(m.WindowHeight-reserved, 5)
}

func (m *Model) submit(text string) tea.Cmd {
	if _, err := m.conv.Submit(m.ctx, text, m.enabledTools()); err != nil {
		return m.notice(err.Error())
	}
	m.UpdateViewport()
	return m.Spinner.Tick
}

func (m *Model) resubmit() tea.Cmd {
	msgs := m.conv.Messages()
	i := LastAssistant(msgs, func(msg models.Message) bool { return msg.Resubmittable })
	if i < 0 {
		return m.notice(m.tr.T("nothing_to_resubmit"))
	}
	if _, err := m.conv.Resubmit(m.ctx, i, m.enabledTools()); err != nil {
		return m.notice(err.Error())
	}
	return m.Spinner.Tick
}

func (m *Model) notice(text string) tea.Cmd {
	m.noticeSeq++
	m.Notice = text
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
}

func (m *Model) agentID() string {
	if s := m.sess.ChatSession(); s != nil {
		return s.Agent.ID
	}
	return ""
}

func (m *Model) catalog() tools.Catalog {
	if s := m.sess.ChatSession(); s != nil {
		return tools.NewCatalog(s.Agent.Tools)
	}
	return tools.NewCatalog(nil)
}

func (m *Model) enabledTools() []string {
	catalog := m.catalog()
	return catalog.Filter(m.sess.EnabledTools(m.agentID(), catalog.Tools()))
}

func (m *Model) filteredThreads() []models.Thread {
	return session.FilterThreads(m.sess.Threads(), m.ThreadSearch.Value())
}

func (m *Model) visibleThreads() []models.Thread {
	all := m.filteredThreads()
	start := m.ThreadPage * ThreadPageSize
	if start >= len(all) {
		return nil
	}
	return all[start:min(start+ThreadPageSize, len(all))]
}

func (m *Model) clampThreadIdx() {
	if n := len(m.visibleThreads()); m.ThreadIdx >= n {
		m.ThreadIdx = max(n-1, 0)
	}
}

func (m *Model) newThreadCmd() tea.Cmd {
	return func() tea.Msg {
		t, err := m.sess.NewThread(m.ctx)
		return threadLoadedMsg{Thread: t, Err: err}
	}
}

func (m *Model) loadThreadCmd(id string) tea.Cmd {
	return func() tea.Msg {
		t, err := m.sess.LoadThread(m.ctx, id)
		return threadLoadedMsg{Thread: t, Err: err}
	}
}

func (m *Model) deleteThreadCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return threadDeletedMsg{ID: id, Err: m.sess.DeleteThread(m.ctx, id)}
	}
}

func (m *Model) refreshThreadsCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.sess.RefreshThreads(m.ctx); err != nil {
			m.log.Warn("refreshing threads", "error", err)
		}
		return nil
	}
}

func (m *Model) rateCmd(rating models.Rating) tea.Cmd {
	msgs := m.conv.Messages()
	i := LastAssistant(msgs, func(msg models.Message) bool { return msg.ID != "" })
	if i < 0 || m.rater == nil {
		return m.notice(m.tr.T("rating_failed"))
	}
	messageID := msgs[i].ID
	agentID := m.agentID()
	token := m.sess.Token()
	return func() tea.Msg {
		if apiErr := m.rater.RateMessage(m.ctx, token, agentID, messageID, rating); apiErr != nil {
			return ratedMsg{Rating: rating, Err: apiErr}
		}
		return ratedMsg{Rating: rating}
	}
}

func (m *Model) restartCmd(req conversation.RestartRequired) tea.Cmd {
	return func() tea.Msg {
		params, err := tokens.ParseBootstrapURL(req.URL)
		if err != nil {
			return sessionReadyMsg{Err: err}
		}
		if err := tokens.ApplyRefresh(m.store, params); err != nil {
			return sessionReadyMsg{Err: err}
		}
		return sessionReadyMsg{Err: m.sess.Init(m.ctx)}
	}
}

// titleCmds starts a lookup for every cited web source not yet resolved.
func (m *Model) titleCmds() tea.Cmd {
	if m.titleClient == nil {
		return nil
	}
	var cmds []tea.Cmd
	for _, u := range CitedURLs(m.conv.Messages()) {
		if _, done := m.titles[u]; done || m.titlesPending[u] {
			continue
		}
		m.titlesPending[u] = true
		url := u
		cmds = append(cmds, func() tea.Msg {
			title, err := linktitle.Fetch(m.ctx, m.titleClient, url)
			if err != nil {
				m.log.Debug("title lookup failed", "url", url, "error", err)
			}
			return titleMsg{URL: url, Title: title}
		})
	}
	return tea.Batch(cmds...)
}
