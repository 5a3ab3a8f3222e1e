package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaichat/internal/models"
)

const sampleStream = `<message_id>3f2b8c1e-9d4a-4b7e-8c21-6a0f5e9d1b23</message_id>` +
	`<message_body>Hello</message_body>` +
	`<message_body> world</message_body>` +
	`<tool_call>{"id":"t1","name":"search","type":"perplexity","arguments":{"q":"go"}}</tool_call>` +
	`<tool_result>{"id":"t1","output":"trunc</tool_result>` +
	`<message_body>See </message_body>` +
	`<message_body><documents ids="</message_body>` +
	`<message_body>a, b ,c" /></message_body>` +
	`<message_body>done</message_body>`

func feedAll(d *Decoder, chunks []string) []Event {
	var out []Event
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

func splitEvery(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestFeedWholeStream(t *testing.T) {
	events := NewDecoder().Feed(sampleStream)

	require.Len(t, events, 8)
	assert.Equal(t, MessageID("3f2b8c1e-9d4a-4b7e-8c21-6a0f5e9d1b23"), events[0])
	assert.Equal(t, TextFragment("Hello"), events[1])
	assert.Equal(t, TextFragment(" world"), events[2])
	assert.Equal(t, KindToolCall, events[3].Kind)
	assert.Equal(t, "search", events[3].ToolCall.Name)
	assert.Equal(t, models.ToolCallPerplexity, events[3].ToolCall.Type)
	assert.Equal(t, ToolResultReceived(`{"id":"t1","output":"trunc`), events[4])
	assert.Equal(t, TextFragment("See "), events[5])
	assert.Equal(t, DocumentCitation([]string{"a", "b", "c"}), events[6])
	assert.Equal(t, TextFragment("done"), events[7])
}

func TestFeedRechunkingInvariance(t *testing.T) {
	want := NewDecoder().Feed(sampleStream)

	for n := 1; n <= len(sampleStream); n++ {
		got := feedAll(NewDecoder(), splitEvery(sampleStream, n))
		require.Equal(t, want, got, "chunk size %d", n)
	}

	for cut := 1; cut < len(sampleStream); cut++ {
		got := feedAll(NewDecoder(), []string{sampleStream[:cut], sampleStream[cut:]})
		require.Equal(t, want, got, "cut at %d", cut)
	}
}

func TestFeedRechunkingInvarianceStrict(t *testing.T) {
	want := NewDecoder(WithStrictCitations(true)).Feed(sampleStream)
	for cut := 1; cut < len(sampleStream); cut++ {
		got := feedAll(NewDecoder(WithStrictCitations(true)), []string{sampleStream[:cut], sampleStream[cut:]})
		require.Equal(t, want, got, "cut at %d", cut)
	}
}

func TestFeedEmptyChunk(t *testing.T) {
	tests := []struct {
		name    string
		primers []string
	}{
		{name: "fresh decoder"},
		{name: "half open tag", primers: []string{"<message_bo"}},
		{name: "open body", primers: []string{"<message_body>partial"}},
		{name: "collecting citation", primers: []string{`<message_body><documents ids="a</message_body>`}},
		{name: "after empty chunk", primers: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			feedAll(d, tt.primers)
			before := d.Buffered()

			events := d.Feed("")
			assert.Equal(t, []Event{TextFragment("\n")}, events)
			assert.Equal(t, before, d.Buffered())
		})
	}
}

func TestFeedEmptyChunkInsideSplitTag(t *testing.T) {
	d := NewDecoder()
	events := feedAll(d, []string{"<message_body>Hi", "", " there</message_body>"})
	assert.Equal(t, []Event{TextFragment("\n"), TextFragment("Hi there")}, events)
}

func TestFeedMessageID(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []Event
	}{
		{
			name:  "canonical",
			chunk: "<message_id>3F2B8C1E-9D4A-4B7E-8C21-6A0F5E9D1B23</message_id>",
			want:  []Event{MessageID("3F2B8C1E-9D4A-4B7E-8C21-6A0F5E9D1B23")},
		},
		{name: "not a uuid", chunk: "<message_id>42</message_id>"},
		{name: "padded", chunk: "<message_id> 3f2b8c1e-9d4a-4b7e-8c21-6a0f5e9d1b23</message_id>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewDecoder().Feed(tt.chunk))
		})
	}
}

func TestFeedIgnoresUntaggedText(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed("stray text <b>bold</b> "))
	assert.Equal(t, 0, d.Buffered())
	assert.Equal(t, []Event{TextFragment("x")}, d.Feed("noise<message_body>x</message_body>"))
}

func TestFeedLooseHeuristicSwallowsPlainQuotes(t *testing.T) {
	d := NewDecoder()
	// Quoted prose enters the citation buffer and stays there.
	events := feedAll(d, []string{
		`<message_body>He said "hi"</message_body>`,
		`<message_body> and left</message_body>`,
	})
	assert.Empty(t, events)
	assert.Positive(t, d.Buffered())
}

func TestFeedStrictCitations(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []Event
	}{
		{
			name:   "quotes stay text",
			chunks: []string{`<message_body>He said "hi"</message_body>`},
			want:   []Event{TextFragment(`He said "hi"`)},
		},
		{
			name:   "text around citation",
			chunks: []string{`<message_body>see <documents ids="d1" /> here</message_body>`},
			want: []Event{
				TextFragment("see "),
				DocumentCitation([]string{"d1"}),
				TextFragment(" here"),
			},
		},
		{
			name: "split citation",
			chunks: []string{
				`<message_body>x <docu</message_body>`,
				`<message_body>ments ids="a,b"</message_body>`,
				`<message_body> /></message_body>`,
			},
			want: []Event{TextFragment("x "), DocumentCitation([]string{"a", "b"})},
		},
		{
			name:   "other markup flushed",
			chunks: []string{`<message_body>a <b>bold</message_body>`},
			want:   []Event{TextFragment("a "), TextFragment("<b>bold")},
		},
		{
			name:   "repeated angle brackets",
			chunks: []string{`<message_body>if a<<b then</message_body>`},
			want:   []Event{TextFragment("if a"), TextFragment("<<b then")},
		},
		{
			name:   "markup before citation",
			chunks: []string{`<message_body><b>x</b><documents ids="d1" /></message_body>`},
			want:   []Event{TextFragment("<b>x</b>"), DocumentCitation([]string{"d1"})},
		},
		{
			name:   "historical spelling",
			chunks: []string{`<message_body><document-citation ids="z" /></message_body>`},
			want:   []Event{DocumentCitation([]string{"z"})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(WithStrictCitations(true))
			assert.Equal(t, tt.want, feedAll(d, tt.chunks))
		})
	}
}

func TestFeedStrictFlushesOversizedBuffer(t *testing.T) {
	d := NewDecoder(WithStrictCitations(true))
	long := `<documents ids="` + strings.Repeat("x", strictFlushLimit)
	events := d.Feed("<message_body>" + long + "</message_body>")

	require.NotEmpty(t, events)
	var text strings.Builder
	for _, e := range events {
		require.Equal(t, KindText, e.Kind)
		text.WriteString(e.Text)
	}
	assert.Equal(t, long, text.String())
	assert.Equal(t, 0, d.Buffered())
}

func TestFeedEmptyCitationEmitsNothing(t *testing.T) {
	d := NewDecoder()
	assert.Empty(t, d.Feed(`<message_body><documents ids=" , " /></message_body>`))
	assert.Equal(t, []Event{TextFragment("next")}, d.Feed(`<message_body>next</message_body>`))
}

type countingObserver struct {
	strategies []string
	citations  int
}

func (o *countingObserver) ToolCallDecoded(s string) { o.strategies = append(o.strategies, s) }
func (o *countingObserver) CitationDecoded()         { o.citations++ }

func TestFeedToolCallRecovery(t *testing.T) {
	obs := &countingObserver{}
	d := NewDecoder(WithObserver(obs))

	events := d.Feed(`<tool_call>{"id":"1","name":"x","type":"datasource","arguments":{'a':1}}</tool_call>`)
	require.Len(t, events, 1)
	call := events[0].ToolCall
	assert.Equal(t, "1", call.ID)
	assert.Equal(t, "x", call.Name)
	assert.Equal(t, models.ToolCallDatasource, call.Type)

	assert.Empty(t, d.Feed(`<tool_call>not json at all</tool_call>`))
	assert.Equal(t, []string{"requote", "dropped"}, obs.strategies)

	d.Feed(`<message_body><documents ids="a" /></message_body>`)
	assert.Equal(t, 1, obs.citations)
}
