// Package session holds the chat session context shared by the TUI and
// the conversation: the loaded session, the active thread, the thread list
// and per-agent tool selections. Changes are published to subscribers
// synchronously.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"plaichat/internal/api"
	"plaichat/internal/logger"
	"plaichat/internal/models"
	"plaichat/internal/tokens"
)

var ErrNotAuthenticated = errors.New("no chat session token stored")

type Resolver interface {
	FetchSession(ctx context.Context, sessionID, accessToken string) (*models.ChatSession, *api.APIError)
}

type ThreadRepository interface {
	ListThreads(ctx context.Context, sessionID, token string) ([]models.Thread, *api.APIError)
	GetThread(ctx context.Context, sessionID, threadID, token string) (*models.Thread, *api.APIError)
	CreateThread(ctx context.Context, sessionID, token string) (*models.Thread, *api.APIError)
	DeleteThread(ctx context.Context, sessionID, threadID, token string) bool
}

type ChangeKind int

const (
	SessionLoaded ChangeKind = iota + 1
	ThreadChanged
	ThreadsUpdated
	ToolsChanged
	Touched
)

type Change struct {
	Kind     ChangeKind
	ThreadID string
	AgentID  string
	Tools    []string
}

type Context struct {
	store    tokens.Store
	resolver Resolver
	threads  ThreadRepository
	log      *logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	session    *models.ChatSession
	active     *models.Thread
	activeID   string
	threadList []models.Thread
	lastUpdate time.Time

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func New(store tokens.Store, resolver Resolver, threads ThreadRepository, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Discard()
	}
	return &Context{
		store:    store,
		resolver: resolver,
		threads:  threads,
		log:      log.WithComponent("session"),
		now:      time.Now,
		subs:     map[int]func(Change){},
	}
}

// Init loads the session, the active thread and the thread list in parallel.
func (c *Context) Init(ctx context.Context) error {
	token, ok := c.store.Get(tokens.AccessToken)
	if !ok || token == "" {
		return ErrNotAuthenticated
	}
	sessionID, ok := c.store.Get(tokens.SessionID)
	if !ok || sessionID == "" {
		id, err := tokens.SessionIDFromToken(token)
		if err != nil {
			return err
		}
		sessionID = id
		c.store.Set(tokens.SessionID, id)
	}
	activeID, _ := c.store.Get(tokens.ActiveThreadID)

	var (
		session *models.ChatSession
		active  *models.Thread
		list    []models.Thread
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, apiErr := c.resolver.FetchSession(gctx, sessionID, token)
		if apiErr != nil {
			return apiErr
		}
		session = s
		return nil
	})
	g.Go(func() error {
		threads, apiErr := c.threads.ListThreads(gctx, sessionID, token)
		if apiErr != nil {
			return apiErr
		}
		list = threads
		return nil
	})
	if activeID != "" {
		g.Go(func() error {
			// A stale active thread is not fatal; the list still loads.
			t, apiErr := c.threads.GetThread(gctx, sessionID, activeID, token)
			if apiErr != nil {
				c.log.Warn("loading active thread", "thread_id", activeID, "status", apiErr.Status)
				return nil
			}
			active = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.active = active
	c.activeID = activeID
	c.threadList = list
	c.mu.Unlock()

	c.log.Info("session loaded", "session_id", sessionID, "agent", session.Agent.Name, "threads", len(list))
	c.publish(Change{Kind: SessionLoaded, ThreadID: activeID})
	return nil
}

// Teardown drops every subscriber.
func (c *Context) Teardown() {
	c.subMu.Lock()
	c.subs = map[int]func(Change){}
	c.subMu.Unlock()
}

func (c *Context) ChatSession() *models.ChatSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Context) SessionID() string {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s != nil {
		return s.ID
	}
	id, _ := c.store.Get(tokens.SessionID)
	return id
}

func (c *Context) Token() string {
	t, _ := c.store.Get(tokens.AccessToken)
	return t
}

func (c *Context) ActiveThreadID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// ActiveThread is the thread loaded at Init or by the last LoadThread.
func (c *Context) ActiveThread() *models.Thread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Context) SetActiveThreadID(id string) {
	c.store.Set(tokens.ActiveThreadID, id)
	c.mu.Lock()
	c.activeID = id
	if c.active != nil && c.active.ID != id {
		c.active = nil
	}
	c.mu.Unlock()
	c.publish(Change{Kind: ThreadChanged, ThreadID: id})
}

func (c *Context) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Touch records that the active thread changed on the server.
func (c *Context) Touch() {
	c.mu.Lock()
	c.lastUpdate = c.now()
	id := c.activeID
	c.mu.Unlock()
	c.publish(Change{Kind: Touched, ThreadID: id})
}

// Subscribe registers fn for every change and returns its unsubscribe func.
func (c *Context) Subscribe(fn func(Change)) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Context) publish(ch Change) {
	c.subMu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
