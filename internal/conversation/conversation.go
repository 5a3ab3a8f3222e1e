// Package conversation keeps the ordered message list of one chat thread
// consistent while assistant responses stream in, are aborted or fail.
package conversation

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"plaichat/internal/api"
	"plaichat/internal/logger"
	"plaichat/internal/metrics"
	"plaichat/internal/models"
	"plaichat/internal/stream"
	"plaichat/internal/tokens"
)

const tickInterval = 100 * time.Millisecond

type Deps struct {
	Streamer   Streamer
	Threads    ThreadFetcher
	Refresher  Refresher
	Tokens     tokens.Store
	Session    Session
	Translator Translator
	Notifier   Notifier
	Logger     *logger.Logger
	Metrics    *metrics.Metrics

	// UIURL is the base of the restart URL built after a token refresh.
	UIURL          string
	DecoderOptions []stream.Option
}

// Turn is the handle of one submitted prompt.
type Turn struct {
	ID           string
	Prompt       string
	EnabledTools []string

	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the turn's stream goroutine has finished.
func (t *Turn) Done() <-chan struct{} { return t.done }

type Conversation struct {
	deps Deps
	log  *logger.Logger

	mu        sync.Mutex
	messages  []models.Message
	state     State
	elapsed   float64
	current   *Turn
	gen       uint64
	stopTimer func()
	onRestart func(RestartRequired)

	changes chan struct{}
}

func New(deps Deps) *Conversation {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Conversation{
		deps:    deps,
		log:     deps.Logger.WithComponent("conversation"),
		changes: make(chan struct{}, 1),
	}
}

// OnRestart registers the callback run when a refreshed token requires the
// session to be bootstrapped again.
func (c *Conversation) OnRestart(fn func(RestartRequired)) {
	c.mu.Lock()
	c.onRestart = fn
	c.mu.Unlock()
}

// Changes delivers at most one pending notification; receivers re-read state.
func (c *Conversation) Changes() <-chan struct{} { return c.changes }

func (c *Conversation) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Submit appends the prompt and an empty assistant reply and starts
// streaming into it. A turn still streaming is cancelled first.
func (c *Conversation) Submit(ctx context.Context, text string, enabledTools []string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}
	threadID := c.deps.Session.ActiveThreadID()
	if threadID == "" {
		return nil, ErrNoThread
	}

	turnCtx, cancel := context.WithCancel(ctx)
	turn := &Turn{
		ID:           logger.NewTurnID(),
		Prompt:       text,
		EnabledTools: enabledTools,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
		if c.state == Streaming {
			c.deps.Metrics.TurnFinished("superseded")
		}
	}
	c.haltTimerLocked()
	c.gen++
	turn.gen = c.gen
	c.current = turn
	c.messages = append(c.messages,
		models.Message{Role: models.RoleUser, Content: text, ThreadID: threadID},
		models.Message{Role: models.RoleAssistant, ThreadID: threadID},
	)
	c.state = Streaming
	c.startTimerLocked(turn.gen)
	c.mu.Unlock()
	c.changed()

	sessionID := c.deps.Session.SessionID()
	turnCtx = logger.WithTurnID(turnCtx, turn.ID)
	turnCtx = logger.WithSessionID(turnCtx, sessionID)
	turnCtx = logger.WithThreadID(turnCtx, threadID)
	c.log.WithContext(turnCtx).Info("submitting prompt", "enabled_tools", enabledTools)

	go c.run(turnCtx, turn, sessionID, threadID)
	return turn, nil
}

// Abort stops the live stream and keeps whatever content already arrived.
func (c *Conversation) Abort() error {
	c.mu.Lock()
	if c.state != Streaming || c.current == nil {
		c.mu.Unlock()
		return ErrNotStreaming
	}
	c.current.cancel()
	c.gen++
	c.current = nil
	c.haltTimerLocked()
	c.deps.Metrics.TurnFinished("aborted")
	c.state = Idle
	c.mu.Unlock()
	c.changed()
	return nil
}

// Resubmit sends again the user prompt that produced the assistant message
// at index.
func (c *Conversation) Resubmit(ctx context.Context, index int, enabledTools []string) (*Turn, error) {
	c.mu.Lock()
	if index <= 0 || index >= len(c.messages) || c.messages[index].Role != models.RoleAssistant {
		c.mu.Unlock()
		return nil, ErrNotResubmittable
	}
	prompt := ""
	for i := index - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleUser {
			prompt = c.messages[i].Content
			break
		}
	}
	c.mu.Unlock()

	if prompt == "" {
		return nil, ErrNotResubmittable
	}
	return c.Submit(ctx, prompt, enabledTools)
}

// Replace swaps in a freshly loaded thread. A live stream is cancelled.
func (c *Conversation) Replace(messages []models.Message) {
	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.gen++
	c.haltTimerLocked()
	c.state = Idle
	c.messages = append([]models.Message(nil), messages...)
	c.mu.Unlock()
	c.changed()
}

// Messages returns a copy of the list. Assistant messages after the first
// position are marked resubmittable.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		m.ToolCalls = append([]models.ToolCall(nil), m.ToolCalls...)
		m.Resubmittable = i > 0 && m.Role == models.RoleAssistant
		out[i] = m
	}
	return out
}

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed is the running time of the live turn in seconds.
func (c *Conversation) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// OpenIndex is the index of the assistant message receiving text, or -1
// when nothing is streaming.
func (c *Conversation) OpenIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Streaming {
		return -1
	}
	return c.lastAssistantLocked()
}

func (c *Conversation) lastAssistantLocked() int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleAssistant {
			return i
		}
	}
	return -1
}

func (c *Conversation) startTimerLocked(gen uint64) {
	c.elapsed = 0
	stop := make(chan struct{})
	var once sync.Once
	c.stopTimer = func() { once.Do(func() { close(stop) }) }

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				select {
				case <-stop:
					c.mu.Unlock()
					return
				default:
				}
				if c.gen != gen {
					c.mu.Unlock()
					return
				}
				c.elapsed += tickInterval.Seconds()
				c.mu.Unlock()
				c.changed()
			}
		}
	}()
}

func (c *Conversation) haltTimerLocked() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.elapsed = 0
}

// liveLocked reports whether gen still owns the conversation.
func (c *Conversation) liveLocked(gen uint64) bool {
	return c.gen == gen && c.current != nil && c.current.gen == gen
}

func (c *Conversation) run(ctx context.Context, turn *Turn, sessionID, threadID string) {
	defer close(turn.done)
	log := c.log.WithContext(ctx)

	token, ok := c.deps.Tokens.Get(tokens.AccessToken)
	if !ok || token == "" {
		c.fail(ctx, turn, sessionID, ErrNoToken)
		return
	}

	chunks, err := c.deps.Streamer.Open(ctx, sessionID, threadID, token, turn.Prompt)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(ctx, turn, sessionID, err)
		}
		return
	}

	dec := stream.NewDecoder(append([]stream.Option{
		stream.WithLogger(c.deps.Logger),
		stream.WithObserver(c.deps.Metrics),
	}, c.deps.DecoderOptions...)...)

	for chunk, err := range chunks {
		if err != nil {
			if ctx.Err() == nil {
				c.fail(ctx, turn, sessionID, err)
			}
			return
		}
		for _, ev := range dec.Feed(chunk) {
			if !c.apply(turn.gen, ev, log) {
				log.Debug("discarding event from finished turn", "kind", ev.Kind)
				return
			}
		}
	}
	if ctx.Err() != nil {
		return
	}
	c.finish(ctx, turn, sessionID, threadID, token)
}

// apply folds one event into the list. It reports false once the turn no
// longer owns the conversation.
func (c *Conversation) apply(gen uint64, ev stream.Event, log *logger.Logger) bool {
	c.mu.Lock()
	if !c.liveLocked(gen) || c.state != Streaming {
		c.mu.Unlock()
		return false
	}
	i := c.lastAssistantLocked()
	if i < 0 {
		c.mu.Unlock()
		return true
	}

	switch ev.Kind {
	case stream.KindText:
		c.appendLocked(i, ev.Text)
	case stream.KindCitation:
		c.appendLocked(i, stream.CitationMarker(ev.DocumentIDs))
	case stream.KindMessageID:
		c.messages[i].ID = ev.MessageID
	case stream.KindToolCall:
		label := c.toolLabel(ev.ToolCall.Type)
		log.Info("tool call started", "tool", ev.ToolCall.Name, "type", ev.ToolCall.Type)
		if label != "" {
			threadID := c.messages[i].ThreadID
			c.messages[i] = models.Message{Role: models.RoleAssistant, Content: label, ThreadID: threadID}
			c.messages = slices.Insert(c.messages, i+1, models.Message{Role: models.RoleAssistant, ThreadID: threadID})
		}
	case stream.KindToolResult:
		log.Debug("tool result received", "bytes", len(ev.Raw))
	}
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *Conversation) appendLocked(i int, text string) {
	if strings.HasSuffix(c.messages[i].Content, text) {
		return
	}
	c.messages[i].Content += text
}

func (c *Conversation) toolLabel(t models.ToolCallType) string {
	switch t {
	case models.ToolCallDatasource:
		return c.t("tool_type_datasource")
	case models.ToolCallPerplexity:
		return c.t("tool_type_perplexity")
	default:
		return ""
	}
}

func (c *Conversation) t(key string) string {
	if c.deps.Translator == nil {
		return key
	}
	return c.deps.Translator.T(key)
}

func (c *Conversation) notify(msg string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Notify(msg)
	}
}

// finish replaces the streamed list with the canonical thread.
func (c *Conversation) finish(ctx context.Context, turn *Turn, sessionID, threadID, token string) {
	c.mu.Lock()
	if !c.liveLocked(turn.gen) {
		c.mu.Unlock()
		return
	}
	c.state = Closing
	c.haltTimerLocked()
	c.mu.Unlock()
	c.changed()

	thread, apiErr := c.deps.Threads.GetThread(ctx, sessionID, threadID, token)

	c.mu.Lock()
	if !c.liveLocked(turn.gen) {
		c.mu.Unlock()
		return
	}
	if apiErr == nil {
		c.messages = append([]models.Message(nil), thread.Messages...)
	}
	c.state = Idle
	c.current = nil
	c.mu.Unlock()

	if apiErr != nil {
		c.log.WithContext(ctx).Error("re-fetching thread", "status", apiErr.Status, "error", apiErr.Body)
		c.notify(apiErr.Error())
	}
	c.deps.Session.Touch()
	c.deps.Metrics.TurnFinished("closed")
	c.changed()
}

func (c *Conversation) fail(ctx context.Context, turn *Turn, sessionID string, err error) {
	c.mu.Lock()
	if !c.liveLocked(turn.gen) {
		c.mu.Unlock()
		return
	}
	c.state = Errored
	c.haltTimerLocked()
	restart := c.onRestart
	c.mu.Unlock()
	c.changed()

	c.log.LogError(ctx, err, "stream failed")
	c.deps.Metrics.TurnFinished("errored")

	refresh, hasRefresh := c.deps.Tokens.Get(tokens.RefreshToken)
	access, hasAccess := c.deps.Tokens.Get(tokens.AccessToken)
	switch {
	case !hasAccess || access == "":
		c.notify(c.t("no_auth_token"))
	case api.IsUnauthorized(err) && hasRefresh && refresh != "":
		c.restart(ctx, sessionID, refresh, restart)
	case api.IsUnauthorized(err):
		c.notify(c.t("no_auth_token"))
	default:
		c.notify(err.Error())
	}

	c.mu.Lock()
	if c.liveLocked(turn.gen) {
		c.state = Idle
		c.current = nil
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) restart(ctx context.Context, sessionID, refresh string, fn func(RestartRequired)) {
	// The turn context may already be torn down by the failed stream.
	refreshCtx := context.WithoutCancel(ctx)
	access, err := c.deps.Refresher.Refresh(refreshCtx, sessionID, refresh)
	if err != nil {
		c.log.LogError(ctx, err, "refreshing access token")
		c.notify(err.Error())
		return
	}

	u := strings.TrimRight(c.deps.UIURL, "/") + "/chats/" + url.PathEscape(sessionID) + "?" + url.Values{
		"access":  {access},
		"refresh": {refresh},
	}.Encode()
	req := RestartRequired{URL: u}

	if fn == nil {
		params, err := tokens.ParseBootstrapURL(req.URL)
		if err == nil {
			err = tokens.ApplyRefresh(c.deps.Tokens, params)
		}
		if err != nil {
			c.notify(err.Error())
		}
		return
	}
	fn(req)
}
