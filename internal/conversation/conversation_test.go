package conversation

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaichat/internal/api"
	"plaichat/internal/models"
	"plaichat/internal/stream"
	"plaichat/internal/tokens"
)

type fakeStream struct {
	prompt string
	chunks chan string
	fail   chan error
}

type fakeStreamer struct {
	openErr error
	opened  chan *fakeStream
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{opened: make(chan *fakeStream, 8)}
}

func (f *fakeStreamer) Open(ctx context.Context, sessionID, threadID, token, prompt string) (iter.Seq2[string, error], error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{prompt: prompt, chunks: make(chan string), fail: make(chan error, 1)}
	f.opened <- s
	return func(yield func(string, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case err := <-s.fail:
				yield("", err)
				return
			case c, ok := <-s.chunks:
				if !ok || !yield(c, nil) {
					return
				}
			}
		}
	}, nil
}

type fakeThreads struct {
	mu     sync.Mutex
	thread *models.Thread
	err    *api.APIError
}

func (f *fakeThreads) GetThread(ctx context.Context, sessionID, threadID, token string) (*models.Thread, *api.APIError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.thread, nil
}

type fakeRefresher struct {
	token string
	err   error
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context, sessionID, refreshToken string) (string, error) {
	f.calls.Add(1)
	return f.token, f.err
}

type fakeSession struct {
	touches atomic.Int32
}

func (f *fakeSession) SessionID() string      { return "s1" }
func (f *fakeSession) ActiveThreadID() string { return "t1" }
func (f *fakeSession) Touch()                 { f.touches.Add(1) }

type mapTranslator map[string]string

func (m mapTranslator) T(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return key
}

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Notify(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *notes) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type harness struct {
	conv      *Conversation
	streamer  *fakeStreamer
	threads   *fakeThreads
	refresher *fakeRefresher
	session   *fakeSession
	notes     *notes
	store     *tokens.CookieJar
}

func newHarness(t *testing.T, cookies string, opts ...stream.Option) *harness {
	t.Helper()
	h := &harness{
		streamer:  newFakeStreamer(),
		threads:   &fakeThreads{thread: &models.Thread{ID: "t1"}},
		refresher: &fakeRefresher{token: "newtok"},
		session:   &fakeSession{},
		notes:     &notes{},
		store:     tokens.NewCookieJar(cookies),
	}
	h.conv = New(Deps{
		Streamer:  h.streamer,
		Threads:   h.threads,
		Refresher: h.refresher,
		Tokens:    h.store,
		Session:   h.session,
		Translator: mapTranslator{
			"tool_type_datasource": "Using data source...",
			"tool_type_perplexity": "Searching...",
			"no_auth_token":        "No authentication token found",
		},
		Notifier:       h.notes,
		UIURL:          "https://ui.example/",
		DecoderOptions: opts,
	})
	return h
}

const signedIn = "chat_session_token=tok; chat_session_refresh_token=rt"

func (h *harness) submit(t *testing.T, text string) (*Turn, *fakeStream) {
	t.Helper()
	turn, err := h.conv.Submit(context.Background(), text, []string{"tool-1"})
	require.NoError(t, err)
	select {
	case s := <-h.streamer.opened:
		return turn, s
	case <-time.After(time.Second):
		t.Fatal("stream was not opened")
		return nil, nil
	}
}

func (h *harness) lastContent() string {
	msgs := h.conv.Messages()
	return msgs[len(msgs)-1].Content
}

func send(t *testing.T, s *fakeStream, chunk string) {
	t.Helper()
	select {
	case s.chunks <- chunk:
	case <-time.After(time.Second):
		t.Fatal("stream did not take chunk")
	}
}

func waitDone(t *testing.T, turn *Turn) {
	t.Helper()
	select {
	case <-turn.Done():
	case <-time.After(time.Second):
		t.Fatal("turn did not finish")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestSubmitStreamsFragments(t *testing.T) {
	h := newHarness(t, signedIn)
	h.threads.thread = &models.Thread{ID: "t1", Messages: []models.Message{
		{ID: "u1", Role: models.RoleUser, Content: "Hello"},
		{ID: "a1", Role: models.RoleAssistant, Content: "Hi there"},
	}}

	turn, s := h.submit(t, "Hello")
	assert.Equal(t, "Hello", s.prompt)
	assert.Equal(t, Streaming, h.conv.State())
	assert.Equal(t, []string{"tool-1"}, turn.EnabledTools)

	send(t, s, "<message_body>Hi</message_body>")
	send(t, s, "<message_body> there</message_body>")
	eventually(t, func() bool { return h.lastContent() == "Hi there" })

	msgs := h.conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)

	close(s.chunks)
	waitDone(t, turn)

	assert.Equal(t, Idle, h.conv.State())
	msgs = h.conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a1", msgs[1].ID)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.Equal(t, int32(1), h.session.touches.Load())
	assert.Empty(t, h.notes.all())
}

func TestDuplicateSuffixIsNotAppended(t *testing.T) {
	h := newHarness(t, signedIn)
	_, s := h.submit(t, "q")

	send(t, s, "<message_body>ab</message_body>")
	send(t, s, "<message_body>b</message_body>")
	send(t, s, "<message_body>c</message_body>")
	eventually(t, func() bool { return h.lastContent() == "abc" })
}

func TestStrictCitationsKeepRepeatedText(t *testing.T) {
	h := newHarness(t, signedIn, stream.WithStrictCitations(true))
	_, s := h.submit(t, "q")

	send(t, s, "<message_body>if a<<b then</message_body>")
	send(t, s, "<message_body> x <<<y</message_body>")
	eventually(t, func() bool { return h.lastContent() == "if a<<b then x <<<y" })
}

func TestEventsFold(t *testing.T) {
	h := newHarness(t, signedIn)
	_, s := h.submit(t, "q")

	send(t, s, "<message_id>3f2b8c1e-9d4a-4b7e-8c21-6a0f5e9d1b23</message_id>")
	send(t, s, "<message_body>See</message_body>")
	send(t, s, `<message_body><documents ids="d1, d2" /></message_body>`)
	send(t, s, "")
	send(t, s, `<tool_result>{"id":"x"}</tool_result>`)

	// The newline from the empty chunk is already a suffix and is skipped.
	send(t, s, "<message_body>.</message_body>")
	eventually(t, func() bool {
		return h.lastContent() == "See\n\n<document-citation ids=\"d1,d2\" />\n\n."
	})
	msgs := h.conv.Messages()
	assert.Equal(t, "3f2b8c1e-9d4a-4b7e-8c21-6a0f5e9d1b23", msgs[1].ID)
}

func TestToolCallOpensNewBubble(t *testing.T) {
	h := newHarness(t, signedIn)
	_, s := h.submit(t, "q")

	send(t, s, "<message_body>thinking</message_body>")
	send(t, s, `<tool_call>{"id":"t1","name":"search","type":"perplexity","arguments":{}}</tool_call>`)
	eventually(t, func() bool { return len(h.conv.Messages()) == 3 })

	msgs := h.conv.Messages()
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Searching...", msgs[1].Content)
	assert.Equal(t, models.RoleAssistant, msgs[2].Role)
	assert.Empty(t, msgs[2].Content)
	assert.Equal(t, 2, h.conv.OpenIndex())

	send(t, s, "<message_body>found it</message_body>")
	eventually(t, func() bool { return h.lastContent() == "found it" })
	assert.Equal(t, "Searching...", h.conv.Messages()[1].Content)

	send(t, s, `<tool_call>{"id":"t2","name":"get","type":"http_request","arguments":{}}</tool_call>`)
	send(t, s, "<message_body>!</message_body>")
	eventually(t, func() bool { return h.lastContent() == "found it!" })
	assert.Len(t, h.conv.Messages(), 3)
}

func TestAbortKeepsPartialContent(t *testing.T) {
	h := newHarness(t, signedIn)
	turn, s := h.submit(t, "Hello")

	send(t, s, "<message_body>Hi th</message_body>")
	eventually(t, func() bool { return h.lastContent() == "Hi th" })
	eventually(t, func() bool { return h.conv.Elapsed() > 0 })

	require.NoError(t, h.conv.Abort())
	assert.Equal(t, Idle, h.conv.State())
	assert.Zero(t, h.conv.Elapsed())
	assert.Equal(t, -1, h.conv.OpenIndex())
	waitDone(t, turn)

	assert.Equal(t, "Hi th", h.lastContent())
	assert.Zero(t, h.session.touches.Load())
	assert.ErrorIs(t, h.conv.Abort(), ErrNotStreaming)
}

func TestSecondSubmitCancelsFirst(t *testing.T) {
	h := newHarness(t, signedIn)
	first, a := h.submit(t, "one")
	send(t, a, "<message_body>A1</message_body>")
	eventually(t, func() bool { return h.lastContent() == "A1" })

	_, b := h.submit(t, "two")
	waitDone(t, first)

	// The old stream may or may not still take a chunk; either way it must
	// not reach the list.
	select {
	case a.chunks <- "<message_body>late</message_body>":
	case <-time.After(50 * time.Millisecond):
	}
	send(t, b, "<message_body>B1</message_body>")
	eventually(t, func() bool { return h.lastContent() == "B1" })

	msgs := h.conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "A1", msgs[1].Content)
	assert.Equal(t, "two", msgs[2].Content)
	assert.Equal(t, "B1", msgs[3].Content)
	assert.Equal(t, 3, h.conv.OpenIndex())
}

func TestOpenIndex(t *testing.T) {
	h := newHarness(t, signedIn)
	assert.Equal(t, -1, h.conv.OpenIndex())

	turn, s := h.submit(t, "q")
	assert.Equal(t, 1, h.conv.OpenIndex())

	close(s.chunks)
	waitDone(t, turn)
	assert.Equal(t, -1, h.conv.OpenIndex())
}

func TestResubmit(t *testing.T) {
	h := newHarness(t, signedIn)
	h.conv.Replace([]models.Message{
		{Role: models.RoleAssistant, Content: "Welcome"},
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleTool, Content: "{}"},
		{Role: models.RoleAssistant, Content: "a1"},
	})

	msgs := h.conv.Messages()
	assert.False(t, msgs[0].Resubmittable)
	assert.False(t, msgs[1].Resubmittable)
	assert.True(t, msgs[3].Resubmittable)

	for _, i := range []int{-1, 0, 1, 2, 9} {
		_, err := h.conv.Resubmit(context.Background(), i, nil)
		assert.ErrorIs(t, err, ErrNotResubmittable, "index %d", i)
	}

	_, err := h.conv.Resubmit(context.Background(), 3, nil)
	require.NoError(t, err)
	s := <-h.streamer.opened
	assert.Equal(t, "q1", s.prompt)
	assert.Len(t, h.conv.Messages(), 6)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, signedIn)
	_, err := h.conv.Submit(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, h.conv.Messages())
}

func TestUnauthorizedRequiresRestart(t *testing.T) {
	h := newHarness(t, signedIn)
	h.streamer.openErr = &api.StreamError{Status: 401, Body: "expired"}

	restarts := make(chan RestartRequired, 1)
	h.conv.OnRestart(func(r RestartRequired) { restarts <- r })

	turn, err := h.conv.Submit(context.Background(), "Hello", nil)
	require.NoError(t, err)
	waitDone(t, turn)

	select {
	case r := <-restarts:
		assert.Equal(t, "https://ui.example/chats/s1?access=newtok&refresh=rt", r.URL)
	default:
		t.Fatal("restart callback not called")
	}
	assert.Equal(t, int32(1), h.refresher.calls.Load())
	assert.Equal(t, Idle, h.conv.State())
	assert.Len(t, h.conv.Messages(), 2)
}

func TestUnauthorizedWithoutRefreshToken(t *testing.T) {
	h := newHarness(t, "chat_session_token=tok")
	h.streamer.openErr = &api.StreamError{Status: 401, Body: "expired"}

	turn, err := h.conv.Submit(context.Background(), "Hello", nil)
	require.NoError(t, err)
	waitDone(t, turn)

	assert.Zero(t, h.refresher.calls.Load())
	assert.Equal(t, []string{"No authentication token found"}, h.notes.all())
	assert.Equal(t, Idle, h.conv.State())
}

func TestMissingTokenNotifies(t *testing.T) {
	h := newHarness(t, "")
	turn, err := h.conv.Submit(context.Background(), "Hello", nil)
	require.NoError(t, err)
	waitDone(t, turn)

	assert.Equal(t, []string{"No authentication token found"}, h.notes.all())
	assert.Equal(t, Idle, h.conv.State())
}

func TestStreamErrorKeepsContent(t *testing.T) {
	h := newHarness(t, signedIn)
	turn, s := h.submit(t, "Hello")

	send(t, s, "<message_body>partial</message_body>")
	eventually(t, func() bool { return h.lastContent() == "partial" })
	s.fail <- errors.New("connection reset")
	waitDone(t, turn)

	assert.Equal(t, Idle, h.conv.State())
	assert.Equal(t, "partial", h.lastContent())
	assert.Equal(t, []string{"connection reset"}, h.notes.all())
	assert.Zero(t, h.conv.Elapsed())
}

func TestRefetchFailureKeepsStreamedList(t *testing.T) {
	h := newHarness(t, signedIn)
	h.threads.err = &api.APIError{Body: "gone", Status: 500}
	turn, s := h.submit(t, "Hello")

	send(t, s, "<message_body>streamed</message_body>")
	eventually(t, func() bool { return h.lastContent() == "streamed" })
	close(s.chunks)
	waitDone(t, turn)

	assert.Equal(t, Idle, h.conv.State())
	assert.Equal(t, "streamed", h.lastContent())
	assert.Len(t, h.notes.all(), 1)
}
