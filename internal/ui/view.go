package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"plaichat/internal/conversation"
	"plaichat/internal/models"
	"plaichat/internal/styles"
	"plaichat/internal/tokens"
	"plaichat/internal/tools"
)

func (m *Model) agentName() string {
	if s := m.sess.ChatSession(); s != nil && s.Agent.Name != "" {
		return s.Agent.Name
	}
	return "PLai"
}

func (m *Model) threadTitle() string {
	if t := m.sess.ActiveThread(); t != nil {
		return t.DisplayTitle()
	}
	for _, t := range m.sess.Threads() {
		if t.ID == m.sess.ActiveThreadID() {
			return t.DisplayTitle()
		}
	}
	return m.tr.T("new_chat")
}

func (m *Model) stateLabel(state conversation.State) string {
	switch state {
	case conversation.Idle:
		return m.tr.T("idle")
	case conversation.Streaming:
		return m.tr.T("streaming")
	default:
		return state.String()
	}
}

func (m *Model) RenderThreadsModal() string {
	all := m.filteredThreads()
	totalPages := max((len(all)+ThreadPageSize-1)/ThreadPageSize, 1)
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("%s (%d) - %d/%d", m.tr.T("chat_history"), len(all), m.ThreadPage+1, totalPages))

	search := styles.ModalItemStyle.Render(m.ThreadSearch.View())

	var body string
	visible := m.visibleThreads()
	if len(visible) == 0 {
		hint := m.tr.T("no_threads_yet") + " · " + m.tr.T("start_new_chat")
		if m.ThreadSearch.Value() != "" {
			hint = m.tr.T("no_threads_found") + " · " + m.tr.T("try_adjusting_search")
		}
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render(hint))
	} else {
		items := make([]string, 0, len(visible))
		for i, t := range visible {
			cursor := "  "
			if i == m.ThreadIdx {
				cursor = "> "
			}
			marker := ""
			if t.ID == m.sess.ActiveThreadID() {
				marker = "● "
			}
			when := ""
			if ts, ok := ParseTimestamp(t.UpdatedAt); ok {
				when = RelativeTime(ts)
			}
			avail := styles.ContentWidth - 3 - len(cursor) - lipgloss.Width(marker) - lipgloss.Width(when)
			line := fmt.Sprintf("%s%s%s %s", cursor, marker, TruncateRunes(t.DisplayTitle(), avail),
				lipgloss.NewStyle().Foreground(styles.HintColor).Render(when))
			if i == m.ThreadIdx {
				items = append(items, styles.ModalSelectedStyle.Render(line))
			} else {
				items = append(items, styles.ModalItemStyle.Render(line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • ^N: " + m.tr.T("new_chat") + " • ^D: " + m.tr.T("delete_chat") + " • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, search, "", body, hint)
}

func (m *Model) RenderToolsModal() string {
	title := styles.ModalTitleStyle.Render(m.tr.T("configure_tools"))

	catalog := m.catalog()
	if len(catalog.Tools()) == 0 {
		body := styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render(m.tr.T("no_tools")))
		return lipgloss.JoinVertical(lipgloss.Left, title, body)
	}

	enabled := m.sess.EnabledTools(m.agentID(), catalog.Tools())
	items := make([]string, 0, len(catalog.Tools()))
	for i, t := range catalog.Tools() {
		box := "[ ]"
		if slices.Contains(enabled, t.ID) {
			box = "[x]"
		}
		kind := tools.Label(t.Type)
		line := fmt.Sprintf("%s %s %s", box, TruncateRunes(t.Name, styles.ContentWidth-10-len(kind)), kind)
		if i == m.ToolIdx {
			items = append(items, styles.ModalSelectedStyle.Render(line))
			continue
		}
		style := styles.ModalItemStyle
		if c, ok := styles.ToolKindColors[string(t.Type)]; ok {
			style = style.Foreground(lipgloss.Color(c))
		}
		items = append(items, style.Render(line))
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • Space: toggle • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...), hint)
}

// Shortcuts lists the key bindings shown in the shortcuts modal.
var Shortcuts = []struct {
	Key  string
	Desc string
}{
	{"Enter", "send_message"},
	{"Esc/Ctrl+X", "stop_generation"},
	{"Ctrl+R", "Resubmit last answer"},
	{"Ctrl+U", "Rate answer 👍"},
	{"Ctrl+D", "Rate answer 👎"},
	{"Ctrl+N", "new_chat"},
	{"Ctrl+H", "chat_history"},
	{"Ctrl+T", "configure_tools"},
	{"Ctrl+S", "shortcuts"},
	{"Ctrl+C", "Quit"},
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render(m.tr.T("shortcuts"))

	items := make([]string, 0, len(Shortcuts))
	for _, s := range Shortcuts {
		line := fmt.Sprintf("%s %s", styles.KeyStyle.Render(s.Key), styles.DescStyle.Render(m.tr.T(s.Desc)))
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...), hint)
}

func (m *Model) RenderBottomBar() string {
	agent := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#B39DDB")).
		Padding(0, 1).
		Render(TruncateRunes(m.agentName(), 20))

	thread := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(TruncateRunes(m.threadTitle(), 30))

	state := m.conv.State()
	badge := lipgloss.NewStyle().
		Foreground(styles.StateColor(state.String())).
		Render(m.stateLabel(state))

	elapsed := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render(fmt.Sprintf("%.1fs", m.conv.Elapsed()))

	lang := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render(strings.ToUpper(m.tr.Lang()))

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, agent, "  ", thread)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, badge, "  ", elapsed, "  ", lang, "  ", help)

	spacer := strings.Repeat(" ", max(m.WindowWidth-lipgloss.Width(leftSide)-lipgloss.Width(rightSide)-2, 0))
	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(0, 1).
		Render(bar)
}

func (m *Model) welcome() string {
	greeting := m.tr.T("hello")
	if name, ok := m.store.Get(tokens.UserName); ok && name != "" {
		greeting += ", " + name
	}
	subtitle := m.tr.T("start_new_chat")
	if msg, ok := m.store.Get(tokens.GreetingMessage); ok && msg != "" {
		subtitle = msg
	} else if s := m.sess.ChatSession(); s != nil && s.Agent.InitialMessage != "" {
		subtitle = s.Agent.InitialMessage
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.WelcomeTitleStyle.Render(greeting),
		"",
		styles.WelcomeSubtitleStyle.Render(subtitle),
	)
	return lipgloss.Place(m.Viewport.Width, m.Viewport.Height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderMarkdown(content string) string {
	if m.Renderer == nil {
		return content
	}
	rendered, err := m.Renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// renderMessage draws one list entry. open marks the assistant message
// currently receiving text.
func (m *Model) renderMessage(msg models.Message, docs map[string]models.DocumentMetadata, open bool) string {
	switch msg.Role {
	case models.RoleUser:
		return FormatUserMessage(msg.Content, m.Viewport.Width)

	case models.RoleTool:
		if msg.ToolResult == nil {
			return ""
		}
		detail := strings.TrimSpace(msg.ToolResult.OutputText())
		if detail == "" || detail == "null" {
			detail = emptyResultText(msg.ToolResult, m.tr)
		}
		head := styles.ToolNameStyle.Render(toolResultLabel(msg.ToolResult, m.tr))
		return styles.ToolActionStyle.Render(head + "\n" + styles.ToolDetailStyle.Render(TruncateRunes(detail, 200)))
	}

	var parts []string
	if len(msg.ToolCalls) > 0 {
		parts = append(parts, FormatToolActions(msg.ToolCalls))
	}

	body, ids := Footnotes(msg.Content)
	switch {
	case open && strings.TrimSpace(body) == "":
		parts = append(parts, m.Spinner.View()+" "+m.tr.T("streaming")+"...")
	case strings.TrimSpace(body) != "":
		parts = append(parts, m.renderMarkdown(body))
		if open {
			parts = append(parts, m.Spinner.View())
		}
	}

	if len(ids) > 0 {
		parts = append(parts, styles.FootnoteHeaderStyle.Render(m.tr.T("sources")))
		for _, line := range SourceLines(ids, docs, m.titles, m.tr) {
			parts = append(parts, styles.FootnoteStyle.Render(line))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return FormatAgentMessage(m.agentName(), strings.Join(parts, "\n"))
}

func (m *Model) UpdateViewport() {
	msgs := m.conv.Messages()
	if len(msgs) == 0 {
		m.Viewport.SetContent(m.welcome())
		return
	}

	docs := DocumentIndex(msgs)
	open := m.conv.OpenIndex()
	rendered := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		if s := m.renderMessage(msg, docs, i == open); s != "" {
			rendered = append(rendered, s)
		}
	}
	m.Viewport.SetContent(strings.Join(rendered, "\n\n"))
	m.Viewport.GotoBottom()
}

func (m *Model) overlay(modal string) string {
	modal = styles.ModalStyle.Width(ModalWidth).Render(modal)
	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}

func (m *Model) View() string {
	switch {
	case m.ThreadsOpen:
		return m.overlay(m.RenderThreadsModal())
	case m.ToolsOpen:
		return m.overlay(m.RenderToolsModal())
	case m.ShortcutsOpen:
		return m.overlay(m.RenderShortcutsModal())
	}

	inputBox := styles.InputBoxStyle.Width(max(m.WindowWidth-4, 10)).Render(m.TextInput.View())

	notice := ""
	if m.Notice != "" {
		notice = styles.NoticeStyle.Render(m.Notice)
	}

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render(strings.ToUpper(m.agentName())),
		"",
		m.Viewport.View(),
		notice,
		inputBox,
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)
	return lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())
}
