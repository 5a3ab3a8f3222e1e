// Package tokens stores the short-lived access/refresh tokens and session
// identifiers that a browser would keep in cookies.
package tokens

import (
	"strings"
	"sync"
)

// Cookie names shared with the web widget.
const (
	AccessToken     = "chat_session_token"
	RefreshToken    = "chat_session_refresh_token"
	SessionID       = "chat_session_id"
	ActiveThreadID  = "active_thread_id"
	UserName        = "chat_session_user_name"
	GreetingMessage = "chat_session_greeting_message"
	UserLang        = "user_lang"
)

// SessionKeys are the values tied to one chat session. The language
// preference is not among them.
var SessionKeys = []string{AccessToken, RefreshToken, SessionID, ActiveThreadID, UserName, GreetingMessage}

// Store is a plain name/value accessor. Absent names report false. There is
// no expiry and the last writer wins.
type Store interface {
	Get(name string) (string, bool)
	Set(name, value string)
}

// AgentToolsKey namespaces the enabled tool list by agent.
func AgentToolsKey(agentID string) string {
	return "agent_" + agentID + "_tools"
}

// CookieJar is an in-memory Store backed by a browser style cookie string.
type CookieJar struct {
	mu     sync.RWMutex
	order  []string
	values map[string]string
}

// NewCookieJar parses "a=1; b=2". Pairs without '=' are ignored.
func NewCookieJar(cookie string) *CookieJar {
	j := &CookieJar{values: map[string]string{}}
	for _, part := range strings.Split(cookie, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		j.put(key, strings.TrimSpace(value))
	}
	return j
}

func (j *CookieJar) Get(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.values[name]
	return v, ok
}

func (j *CookieJar) Set(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.put(name, value)
}

func (j *CookieJar) put(name, value string) {
	if _, exists := j.values[name]; !exists {
		j.order = append(j.order, name)
	}
	j.values[name] = value
}

// String re-serialises the jar in first-seen order.
func (j *CookieJar) String() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	parts := make([]string, 0, len(j.order))
	for _, k := range j.order {
		parts = append(parts, k+"="+j.values[k])
	}
	return strings.Join(parts, "; ")
}
