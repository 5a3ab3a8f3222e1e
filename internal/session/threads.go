package session

import (
	"context"
	"errors"
	"strings"

	"plaichat/internal/models"
)

var ErrDeleteFailed = errors.New("thread could not be deleted")

// Threads returns the last loaded thread list.
func (c *Context) Threads() []models.Thread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Thread(nil), c.threadList...)
}

func (c *Context) RefreshThreads(ctx context.Context) error {
	list, apiErr := c.threads.ListThreads(ctx, c.SessionID(), c.Token())
	if apiErr != nil {
		return apiErr
	}
	c.mu.Lock()
	c.threadList = list
	c.mu.Unlock()
	c.publish(Change{Kind: ThreadsUpdated})
	return nil
}

// LoadThread fetches a thread with its messages and makes it active.
func (c *Context) LoadThread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, apiErr := c.threads.GetThread(ctx, c.SessionID(), threadID, c.Token())
	if apiErr != nil {
		return nil, apiErr
	}
	c.SetActiveThreadID(t.ID)
	c.mu.Lock()
	c.active = t
	c.mu.Unlock()
	return t, nil
}

// NewThread creates a thread, makes it active and reloads the list.
func (c *Context) NewThread(ctx context.Context) (*models.Thread, error) {
	t, apiErr := c.threads.CreateThread(ctx, c.SessionID(), c.Token())
	if apiErr != nil {
		return nil, apiErr
	}
	c.mu.Lock()
	c.threadList = append([]models.Thread{*t}, c.threadList...)
	c.mu.Unlock()
	c.SetActiveThreadID(t.ID)
	c.mu.Lock()
	c.active = t
	c.mu.Unlock()

	if err := c.RefreshThreads(ctx); err != nil {
		c.log.Warn("reloading threads after create", "error", err)
	}
	return t, nil
}

// DeleteThread removes a thread. Deleting the active thread opens a new one.
func (c *Context) DeleteThread(ctx context.Context, threadID string) error {
	if !c.threads.DeleteThread(ctx, c.SessionID(), threadID, c.Token()) {
		return ErrDeleteFailed
	}

	c.mu.Lock()
	list := c.threadList[:0:0]
	for _, t := range c.threadList {
		if t.ID != threadID {
			list = append(list, t)
		}
	}
	c.threadList = list
	wasActive := c.activeID == threadID
	c.mu.Unlock()
	c.publish(Change{Kind: ThreadsUpdated})

	if wasActive {
		if _, err := c.NewThread(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FilterThreads keeps threads whose display title contains term, ignoring case.
func FilterThreads(threads []models.Thread, term string) []models.Thread {
	term = strings.ToLower(term)
	out := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		if strings.Contains(strings.ToLower(t.DisplayTitle()), term) {
			out = append(out, t)
		}
	}
	return out
}
