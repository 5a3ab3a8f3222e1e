// Package tools manages which of an agent's tools are enabled and how tool
// activity is summarised in the status line.
package tools

import (
	"fmt"
	"slices"
	"strings"

	"plaichat/internal/models"
)

// Catalog is the tool list of one agent, in backend order.
type Catalog struct {
	tools []models.Tool
}

func NewCatalog(tools []models.Tool) Catalog {
	return Catalog{tools: tools}
}

func (c Catalog) Tools() []models.Tool { return c.tools }

func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		ids = append(ids, t.ID)
	}
	return ids
}

func (c Catalog) Lookup(id string) (models.Tool, bool) {
	for _, t := range c.tools {
		if t.ID == id {
			return t, true
		}
	}
	return models.Tool{}, false
}

// Filter drops ids of tools the agent no longer has, keeping catalog order.
func (c Catalog) Filter(enabled []string) []string {
	out := make([]string, 0, len(enabled))
	for _, t := range c.tools {
		if slices.Contains(enabled, t.ID) {
			out = append(out, t.ID)
		}
	}
	return out
}

// Toggle returns a new selection with id flipped.
func Toggle(selection []string, id string) []string {
	if i := slices.Index(selection, id); i >= 0 {
		return slices.Delete(slices.Clone(selection), i, i+1)
	}
	return append(slices.Clone(selection), id)
}

// Label is the display name of a tool kind.
func Label(kind models.ToolKind) string {
	switch kind {
	case models.ToolBrowser:
		return "Browser"
	case models.ToolCodeExecutor:
		return "Code executor"
	case models.ToolHTTP:
		return "HTTP request"
	case models.ToolPerplexity:
		return "Perplexity"
	case models.ToolExternalDatasource:
		return "External data source"
	default:
		return strings.ToLower(string(kind))
	}
}

// Summary renders a one-line description of a tool call.
func Summary(call models.ToolCall) string {
	arg := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := call.Arguments[k].(string); ok && v != "" {
				return truncate(v, 40)
			}
		}
		return ""
	}

	switch call.Type {
	case models.ToolCallPerplexity:
		if q := arg("query", "q"); q != "" {
			return fmt.Sprintf("SEARCH %q", q)
		}
		return "SEARCH the web"
	case models.ToolCallDatasource, models.ToolCallExternalDatasource:
		if q := arg("query", "question", "input"); q != "" {
			return fmt.Sprintf("DATASOURCE %s %q", call.Name, q)
		}
		return fmt.Sprintf("DATASOURCE %s", call.Name)
	case models.ToolCallHTTPRequest:
		method := strings.ToUpper(arg("method"))
		if method == "" {
			method = "GET"
		}
		return strings.TrimSpace(fmt.Sprintf("HTTP %s %s", method, arg("url", "endpoint")))
	case models.ToolCallBrowser:
		return strings.TrimSpace("BROWSE " + arg("url", "query"))
	default:
		return fmt.Sprintf("%s called", strings.ToUpper(call.Name))
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
