// Package stream decodes the tag-delimited chunk format carried by the
// invoke event stream into typed events.
package stream

import (
	"fmt"

	"plaichat/internal/models"
)

type Kind int

const (
	KindMessageID Kind = iota + 1
	KindToolCall
	KindToolResult
	KindText
	KindCitation
)

func (k Kind) String() string {
	switch k {
	case KindMessageID:
		return "message_id"
	case KindToolCall:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	case KindText:
		return "text"
	case KindCitation:
		return "citation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one decoded item. Only the field matching Kind is set.
type Event struct {
	Kind        Kind
	MessageID   string
	ToolCall    models.ToolCall
	Raw         string
	Text        string
	DocumentIDs []string
}

func MessageID(id string) Event { return Event{Kind: KindMessageID, MessageID: id} }

func ToolCallStarted(call models.ToolCall) Event { return Event{Kind: KindToolCall, ToolCall: call} }

// ToolResultReceived carries the raw tag body. The body may be truncated by
// the server and is never parsed; the full result arrives with the thread.
func ToolResultReceived(raw string) Event { return Event{Kind: KindToolResult, Raw: raw} }

func TextFragment(text string) Event { return Event{Kind: KindText, Text: text} }

func DocumentCitation(ids []string) Event { return Event{Kind: KindCitation, DocumentIDs: ids} }
