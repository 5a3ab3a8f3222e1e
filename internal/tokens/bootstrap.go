package tokens

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingParam = errors.New("missing required parameter")

// ValidationError lists the invalid bootstrap fields.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid request: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrMissingParam }

// BootstrapParams are the query parameters an embedding page hands over.
type BootstrapParams struct {
	Access          string
	Refresh         string
	ThreadID        string
	UserName        string
	GreetingMessage string
}

func (p BootstrapParams) validate() error {
	fields := map[string][]string{}
	if p.Access == "" {
		fields["access"] = []string{"Required"}
	}
	if p.Refresh == "" {
		fields["refresh"] = []string{"Required"}
	}
	if p.ThreadID == "" {
		fields["threadId"] = []string{"Required"}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ParamsFromQuery reads the bootstrap parameters from URL query values.
func ParamsFromQuery(q url.Values) BootstrapParams {
	return BootstrapParams{
		Access:          q.Get("access"),
		Refresh:         q.Get("refresh"),
		ThreadID:        q.Get("threadId"),
		UserName:        q.Get("userName"),
		GreetingMessage: q.Get("greetingMessage"),
	}
}

// ParseBootstrapURL extracts parameters from a full redirect URL such as
// the one produced after a token refresh.
func ParseBootstrapURL(raw string) (BootstrapParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BootstrapParams{}, fmt.Errorf("parsing bootstrap url: %w", err)
	}
	return ParamsFromQuery(u.Query()), nil
}

// SessionIDFromToken reads the "id" claim of an access token without
// verifying its signature; the backend verifies on every request.
func SessionIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decoding access token: %w", err)
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", errors.New("access token has no id claim")
	}
	return id, nil
}

// Bootstrap stores the tokens handed over by an embedding page and returns
// the session id. An existing active thread is kept.
func Bootstrap(store Store, p BootstrapParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	sessionID, err := SessionIDFromToken(p.Access)
	if err != nil {
		return "", err
	}

	store.Set(AccessToken, p.Access)
	store.Set(RefreshToken, p.Refresh)
	store.Set(SessionID, sessionID)

	if _, ok := store.Get(ActiveThreadID); !ok {
		store.Set(ActiveThreadID, p.ThreadID)
	}
	if p.UserName != "" {
		store.Set(UserName, p.UserName)
	}
	if p.GreetingMessage != "" {
		store.Set(GreetingMessage, p.GreetingMessage)
	}
	return sessionID, nil
}

// ApplyRefresh stores a refreshed access token handed back through a
// restart URL. Unlike Bootstrap it does not need a thread id.
func ApplyRefresh(store Store, p BootstrapParams) error {
	if p.Access == "" {
		return &ValidationError{Fields: map[string][]string{"access": {"Required"}}}
	}
	sessionID, err := SessionIDFromToken(p.Access)
	if err != nil {
		return err
	}
	store.Set(AccessToken, p.Access)
	if p.Refresh != "" {
		store.Set(RefreshToken, p.Refresh)
	}
	store.Set(SessionID, sessionID)
	return nil
}
