package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"plaichat/internal/models"
	"plaichat/internal/stream"
	"plaichat/internal/styles"
	"plaichat/internal/tools"
)

// Translator is the subset of i18n.Translator the render helpers need.
type Translator interface {
	T(key string) string
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "alt+enter":
		return true
	default:
		return false
	}
}

// Footnotes replaces every citation tag with numbered references. Numbers
// follow the first appearance of each document id; the returned ids are in
// that order.
func Footnotes(content string) (string, []string) {
	markers := stream.ParseCitationMarkers(content)
	if len(markers) == 0 {
		return content, nil
	}

	var (
		b     strings.Builder
		order []string
		index = map[string]int{}
		prev  int
	)
	for _, mk := range markers {
		b.WriteString(strings.TrimRight(content[prev:mk.Start], " \n"))
		b.WriteByte(' ')
		for _, id := range mk.IDs {
			n, ok := index[id]
			if !ok {
				order = append(order, id)
				n = len(order)
				index[id] = n
			}
			fmt.Fprintf(&b, "[%d]", n)
		}
		prev = mk.End
	}
	b.WriteString(content[prev:])
	return b.String(), order
}

// DocumentIndex collects the document metadata carried by tool results,
// keyed by document id.
func DocumentIndex(messages []models.Message) map[string]models.DocumentMetadata {
	docs := map[string]models.DocumentMetadata{}
	for _, msg := range messages {
		if msg.ToolResult == nil {
			continue
		}
		for _, d := range msg.ToolResult.DocumentsMetadata {
			docs[d.ID] = d
		}
	}
	return docs
}

// SourceLines renders the footnote list for ids. A fetched page title wins
// over the stored document title.
func SourceLines(ids []string, docs map[string]models.DocumentMetadata, titles map[string]string, tr Translator) []string {
	lines := make([]string, 0, len(ids))
	for i, id := range ids {
		doc, ok := docs[id]
		if !ok {
			lines = append(lines, fmt.Sprintf("[%d] %s", i+1, tr.T("not_available")))
			continue
		}
		title := doc.Title
		if t := titles[doc.Source]; t != "" {
			title = t
		}
		if title == "" {
			title = doc.Source
		}
		if title == "" {
			title = tr.T("resource_deleted")
		}
		line := fmt.Sprintf("[%d] %s", i+1, title)
		if doc.Page > 0 {
			line += fmt.Sprintf(" (%s %d)", strings.ToLower(tr.T("pages")), doc.Page)
		}
		lines = append(lines, line)
	}
	return lines
}

// CitedURLs lists the web sources referenced by citations that still need a
// title, without duplicates.
func CitedURLs(messages []models.Message) []string {
	docs := DocumentIndex(messages)
	seen := map[string]bool{}
	var urls []string
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		for _, mk := range stream.ParseCitationMarkers(msg.Content) {
			for _, id := range mk.IDs {
				src := docs[id].Source
				if !isWebURL(src) || seen[src] {
					continue
				}
				seen[src] = true
				urls = append(urls, src)
			}
		}
	}
	return urls
}

func isWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// LastAssistant returns the index of the newest assistant message matching
// keep, or -1.
func LastAssistant(messages []models.Message, keep func(models.Message) bool) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant && keep(messages[i]) {
			return i
		}
	}
	return -1
}

func toolResultLabel(r *models.ToolResult, tr Translator) string {
	switch r.Type {
	case models.ToolCallPerplexity:
		return tr.T("tool_result_perplexity")
	case models.ToolCallExternalDatasource, models.ToolCallDatasource:
		return tr.T("tool_result_external_datasource")
	default:
		return r.Name
	}
}

func emptyResultText(r *models.ToolResult, tr Translator) string {
	if r.Type == models.ToolCallPerplexity {
		return tr.T("no_perplexity_result")
	}
	return tr.T("no_datasource_result")
}

func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	lines := strings.Split(value, "\n")
	count := 0
	for _, line := range lines {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return runewidth.Truncate(s, max, "…")
}

// ParseTimestamp accepts the backend's RFC 3339 timestamps with or without
// a zone suffix.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1 hr ago"
		}
		return fmt.Sprintf("%d hrs ago", hrs)
	}
	days := int(d.Hours() / 24)
	if days < 14 {
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	weeks := days / 7
	if weeks == 1 {
		return "1 week ago"
	}
	return fmt.Sprintf("%d weeks ago", weeks)
}

func FormatUserMessage(content string, width int) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(max(width-4, 10)).Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAgentMessage(name, content string) string {
	label := styles.AgentLabelStyle.Render(strings.ToUpper(name))
	msg := styles.AgentMsgStyle.Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

// FormatToolActions renders one arrow line per tool call.
func FormatToolActions(calls []models.ToolCall) string {
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		icon := styles.ToolIconStyle.Render("→")
		name := styles.ToolNameStyle.Render(tools.Summary(call))
		lines = append(lines, styles.ToolActionStyle.Render(fmt.Sprintf("%s %s", icon, name)))
	}
	return strings.Join(lines, "\n")
}
