package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaichat/internal/api"
	"plaichat/internal/models"
	"plaichat/internal/tokens"
)

type fakeBackend struct {
	mu       sync.Mutex
	session  *models.ChatSession
	threads  []models.Thread
	fetchErr *api.APIError
	created  int
	deleted  []string
	denyDel  bool
}

func (f *fakeBackend) FetchSession(ctx context.Context, sessionID, token string) (*models.ChatSession, *api.APIError) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.session, nil
}

func (f *fakeBackend) ListThreads(ctx context.Context, sessionID, token string) ([]models.Thread, *api.APIError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Thread(nil), f.threads...), nil
}

func (f *fakeBackend) GetThread(ctx context.Context, sessionID, threadID, token string) (*models.Thread, *api.APIError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if t.ID == threadID {
			return &t, nil
		}
	}
	return nil, &api.APIError{Status: 404, Body: "not found"}
}

func (f *fakeBackend) CreateThread(ctx context.Context, sessionID, token string) (*models.Thread, *api.APIError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	t := models.Thread{ID: "new-thread"}
	f.threads = append([]models.Thread{t}, f.threads...)
	return &t, nil
}

func (f *fakeBackend) DeleteThread(ctx context.Context, sessionID, threadID, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyDel {
		return false
	}
	f.deleted = append(f.deleted, threadID)
	kept := f.threads[:0]
	for _, t := range f.threads {
		if t.ID != threadID {
			kept = append(kept, t)
		}
	}
	f.threads = kept
	return true
}

func newBackend() *fakeBackend {
	title := "Trip planning"
	return &fakeBackend{
		session: &models.ChatSession{
			ID: "s1",
			Agent: models.Agent{ID: "ag1", Name: "Helper", Tools: []models.Tool{
				{ID: "tool-a"}, {ID: "tool-b"},
			}},
		},
		threads: []models.Thread{
			{ID: "t1", Title: &title, Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}}},
			{ID: "t2abcdef99"},
		},
	}
}

const cookies = "chat_session_token=tok; chat_session_id=s1; active_thread_id=t1"

func record(c *Context) *[]Change {
	var got []Change
	c.Subscribe(func(ch Change) { got = append(got, ch) })
	return &got
}

func TestInit(t *testing.T) {
	b := newBackend()
	c := New(tokens.NewCookieJar(cookies), b, b, nil)
	got := record(c)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, "Helper", c.ChatSession().Agent.Name)
	assert.Equal(t, "s1", c.SessionID())
	assert.Equal(t, "t1", c.ActiveThreadID())
	require.NotNil(t, c.ActiveThread())
	assert.Len(t, c.ActiveThread().Messages, 1)
	assert.Len(t, c.Threads(), 2)
	assert.Equal(t, []Change{{Kind: SessionLoaded, ThreadID: "t1"}}, *got)
}

func TestInitFailures(t *testing.T) {
	b := newBackend()
	err := New(tokens.NewCookieJar(""), b, b, nil).Init(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	b.fetchErr = &api.APIError{Status: 401, Body: "expired"}
	err = New(tokens.NewCookieJar(cookies), b, b, nil).Init(context.Background())
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestInitStaleActiveThread(t *testing.T) {
	b := newBackend()
	c := New(tokens.NewCookieJar("chat_session_token=tok; chat_session_id=s1; active_thread_id=gone"), b, b, nil)
	require.NoError(t, c.Init(context.Background()))
	assert.Nil(t, c.ActiveThread())
	assert.Equal(t, "gone", c.ActiveThreadID())
}

func TestSetActiveThreadAndTouch(t *testing.T) {
	store := tokens.NewCookieJar(cookies)
	b := newBackend()
	c := New(store, b, b, nil)
	require.NoError(t, c.Init(context.Background()))
	got := record(c)

	c.SetActiveThreadID("t2abcdef99")
	v, _ := store.Get(tokens.ActiveThreadID)
	assert.Equal(t, "t2abcdef99", v)
	assert.Nil(t, c.ActiveThread())

	assert.True(t, c.LastUpdate().IsZero())
	c.Touch()
	assert.False(t, c.LastUpdate().IsZero())

	assert.Equal(t, []Change{
		{Kind: ThreadChanged, ThreadID: "t2abcdef99"},
		{Kind: Touched, ThreadID: "t2abcdef99"},
	}, *got)
}

func TestSubscribeAndTeardown(t *testing.T) {
	b := newBackend()
	c := New(tokens.NewCookieJar(cookies), b, b, nil)

	var order []string
	unsubA := c.Subscribe(func(Change) { order = append(order, "a") })
	c.Subscribe(func(Change) { order = append(order, "b") })

	c.Touch()
	unsubA()
	c.Touch()
	c.Teardown()
	c.Touch()

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestThreadLifecycle(t *testing.T) {
	b := newBackend()
	c := New(tokens.NewCookieJar(cookies), b, b, nil)
	require.NoError(t, c.Init(context.Background()))
	ctx := context.Background()

	thread, err := c.LoadThread(ctx, "t2abcdef99")
	require.NoError(t, err)
	assert.Equal(t, "t2abcdef99", c.ActiveThreadID())
	assert.Equal(t, thread, c.ActiveThread())

	_, err = c.LoadThread(ctx, "missing")
	assert.Error(t, err)

	created, err := c.NewThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-thread", created.ID)
	assert.Equal(t, "new-thread", c.ActiveThreadID())
	assert.Len(t, c.Threads(), 3)

	require.NoError(t, c.DeleteThread(ctx, "t1"))
	assert.Equal(t, "new-thread", c.ActiveThreadID())
	assert.Len(t, c.Threads(), 2)

	// Deleting the active thread opens a fresh one.
	require.NoError(t, c.DeleteThread(ctx, "new-thread"))
	assert.Equal(t, 2, b.created)
	assert.Equal(t, "new-thread", c.ActiveThreadID())

	b.denyDel = true
	assert.ErrorIs(t, c.DeleteThread(ctx, "t2abcdef99"), ErrDeleteFailed)
}

func TestFilterThreads(t *testing.T) {
	title := "Trip Planning"
	threads := []models.Thread{{ID: "t1", Title: &title}, {ID: "abcdef1234"}}

	tests := []struct {
		term string
		want []string
	}{
		{term: "", want: []string{"t1", "abcdef1234"}},
		{term: "trip", want: []string{"t1"}},
		{term: "CHAT ABCD", want: []string{"abcdef1234"}},
		{term: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			var ids []string
			for _, th := range FilterThreads(threads, tt.term) {
				ids = append(ids, th.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestEnabledTools(t *testing.T) {
	store := tokens.NewCookieJar("")
	b := newBackend()
	c := New(store, b, b, nil)
	all := b.session.Agent.Tools

	assert.Equal(t, []string{"tool-a", "tool-b"}, c.EnabledTools("ag1", all))

	got := record(c)
	c.SetEnabledTools("ag1", []string{"tool-b"})
	assert.Equal(t, []string{"tool-b"}, c.EnabledTools("ag1", all))
	raw, _ := store.Get("agent_ag1_tools")
	assert.JSONEq(t, `["tool-b"]`, raw)
	assert.Equal(t, []Change{{Kind: ToolsChanged, AgentID: "ag1", Tools: []string{"tool-b"}}}, *got)

	c.SetEnabledTools("ag1", nil)
	assert.Empty(t, c.EnabledTools("ag1", all))

	store.Set("agent_ag1_tools", "{broken")
	assert.Equal(t, []string{"tool-a", "tool-b"}, c.EnabledTools("ag1", all))
	assert.Equal(t, []string{"tool-a", "tool-b"}, c.EnabledTools("other", all))
}
