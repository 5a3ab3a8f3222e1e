package stream

import (
	"regexp"
	"strings"

	"plaichat/internal/logger"
)

// strictFlushLimit bounds the citation buffer in strict mode.
const strictFlushLimit = 512

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type tag struct {
	name  string
	open  string
	close string
}

func newTag(name string) tag {
	return tag{name: name, open: "<" + name + ">", close: "</" + name + ">"}
}

var tags = []tag{
	newTag("message_id"),
	newTag("tool_call"),
	newTag("tool_result"),
	newTag("message_body"),
}

// Observer is told about decoded tool calls and citations.
type Observer interface {
	ToolCallDecoded(strategy string)
	CitationDecoded()
}

type Option func(*Decoder)

func WithLogger(l *logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l.WithComponent("stream")
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.observer = o }
}

// WithStrictCitations only starts collecting a citation at an actual '<'
// that can still open a citation tag, and flushes an oversized buffer back
// as text. The default keeps the loose heuristic.
func WithStrictCitations(strict bool) Option {
	return func(d *Decoder) { d.strict = strict }
}

// Decoder turns raw stream chunks into events. It is not safe for
// concurrent use; one decoder serves one stream.
type Decoder struct {
	log      *logger.Logger
	observer Observer
	strict   bool

	frame      strings.Builder
	citation   strings.Builder
	collecting bool
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{log: logger.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed decodes one chunk. Segments split across chunks are held until they
// complete, so the result does not depend on where the chunks were cut.
func (d *Decoder) Feed(chunk string) []Event {
	if chunk == "" {
		return []Event{TextFragment("\n")}
	}

	d.frame.WriteString(chunk)
	buf := d.frame.String()

	var events []Event
	for {
		t, start := nextTag(buf)
		if start < 0 {
			buf = buf[partialTagStart(buf):]
			break
		}
		buf = buf[start:]
		end := strings.Index(buf[len(t.open):], t.close)
		if end < 0 {
			break
		}
		inner := buf[len(t.open) : len(t.open)+end]
		buf = buf[len(t.open)+end+len(t.close):]
		events = d.segment(events, t, inner)
	}

	d.frame.Reset()
	d.frame.WriteString(buf)
	return events
}

// Buffered reports bytes waiting for a closing tag or a complete citation.
func (d *Decoder) Buffered() int {
	return d.frame.Len() + d.citation.Len()
}

func nextTag(buf string) (tag, int) {
	best, at := tag{}, -1
	for _, t := range tags {
		if i := strings.Index(buf, t.open); i >= 0 && (at < 0 || i < at) {
			best, at = t, i
		}
	}
	return best, at
}

// partialTagStart returns where a trailing fragment of an opening tag
// begins, or len(buf) when the tail cannot grow into one.
func partialTagStart(buf string) int {
	i := strings.LastIndexByte(buf, '<')
	if i < 0 {
		return len(buf)
	}
	tail := buf[i:]
	for _, t := range tags {
		if strings.HasPrefix(t.open, tail) {
			return i
		}
	}
	return len(buf)
}

func (d *Decoder) segment(events []Event, t tag, inner string) []Event {
	switch t.name {
	case "message_id":
		if uuidRe.MatchString(inner) {
			events = append(events, MessageID(inner))
		} else {
			d.log.Debug("ignoring malformed message id", "value", inner)
		}
	case "tool_call":
		call, strategy, ok := Recover(inner)
		if !ok {
			d.log.Warn("dropping unrecoverable tool call", "body", inner)
			d.observeToolCall("dropped")
			return events
		}
		if strategy != "strict" {
			d.log.Debug("recovered tool call", "strategy", strategy, "id", call.ID)
		}
		d.observeToolCall(strategy)
		events = append(events, ToolCallStarted(call))
	case "tool_result":
		events = append(events, ToolResultReceived(inner))
	case "message_body":
		if d.strict {
			return d.bodyStrict(events, inner)
		}
		return d.body(events, inner)
	}
	return events
}

func (d *Decoder) body(events []Event, text string) []Event {
	if !d.collecting && !mightBeCitation(text) {
		return append(events, TextFragment(text))
	}
	d.citation.WriteString(text)
	d.collecting = true

	if ids, ok := d.completeCitation(); ok {
		events = d.citationEvent(events, ids)
	}
	return events
}

func (d *Decoder) completeCitation() ([]string, bool) {
	buf := d.citation.String()
	if !citationRe.MatchString(buf) {
		return nil, false
	}
	d.resetCitation()
	return ExtractDocumentIDs(buf), true
}

func (d *Decoder) bodyStrict(events []Event, text string) []Event {
	if !d.collecting {
		i := strings.IndexByte(text, '<')
		if i < 0 {
			return append(events, TextFragment(text))
		}
		if i > 0 {
			events = append(events, TextFragment(text[:i]))
		}
		text = text[i:]
		d.collecting = true
	}
	d.citation.WriteString(text)
	buf := d.citation.String()

	if loc := citationRe.FindStringSubmatchIndex(buf); loc != nil {
		d.resetCitation()
		if loc[0] > 0 {
			events = append(events, TextFragment(buf[:loc[0]]))
		}
		events = d.citationEvent(events, splitIDs(buf[loc[2]:loc[3]]))
		if rest := buf[loc[1]:]; rest != "" {
			events = d.bodyStrict(events, rest)
		}
		return events
	}

	if len(buf) > strictFlushLimit || !couldStillBeCitation(buf) {
		d.resetCitation()
		j := nextCitationStart(buf)
		events = append(events, TextFragment(buf[:j]))
		if rest := buf[j:]; rest != "" {
			events = d.bodyStrict(events, rest)
		}
	}
	return events
}

// nextCitationStart returns the index of the first '<' after the leading
// byte that may still open a citation, or len(buf). Everything before it is
// flushed as one fragment.
func nextCitationStart(buf string) int {
	for j := 1; j < len(buf); j++ {
		if buf[j] == '<' && couldStillBeCitation(buf[j:]) {
			return j
		}
	}
	return len(buf)
}

func (d *Decoder) citationEvent(events []Event, ids []string) []Event {
	if len(ids) == 0 {
		return events
	}
	if d.observer != nil {
		d.observer.CitationDecoded()
	}
	return append(events, DocumentCitation(ids))
}

func (d *Decoder) resetCitation() {
	d.citation.Reset()
	d.collecting = false
}

func (d *Decoder) observeToolCall(strategy string) {
	if d.observer != nil {
		d.observer.ToolCallDecoded(strategy)
	}
}
