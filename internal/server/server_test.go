package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaichat/internal/metrics"
	"plaichat/internal/tokens"
)

func accessToken(t *testing.T, sessionID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": sessionID}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBootstrapRedirects(t *testing.T) {
	store := tokens.NewCookieJar("")
	h := New(store, "https://ui.example", nil, nil).Handler()

	q := url.Values{
		"access":   {accessToken(t, "sess-9")},
		"refresh":  {"rt"},
		"threadId": {"th-1"},
		"userName": {"Ana"},
	}
	rec := get(t, h, "/chats?"+q.Encode())

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://ui.example/chats/sess-9", rec.Header().Get("Location"))
	v, _ := store.Get(tokens.ActiveThreadID)
	assert.Equal(t, "th-1", v)
	v, _ = store.Get(tokens.UserName)
	assert.Equal(t, "Ana", v)
}

func TestBootstrapValidation(t *testing.T) {
	tests := []struct {
		name   string
		query  url.Values
		fields []string
	}{
		{name: "nothing", query: url.Values{}, fields: []string{"access", "refresh", "threadId"}},
		{name: "no thread", query: url.Values{"access": {"a"}, "refresh": {"r"}}, fields: []string{"threadId"}},
		{name: "bad token", query: url.Values{"access": {"garbage"}, "refresh": {"r"}, "threadId": {"t"}}, fields: []string{"access"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, New(tokens.NewCookieJar(""), "https://ui", nil, nil).Handler(), "/chats?"+tt.query.Encode())
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body struct {
				Error map[string][]string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			var got []string
			for k := range body.Error {
				got = append(got, k)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	m.TurnFinished("closed")
	h := New(tokens.NewCookieJar(""), "", m, nil).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `plaichat_turns_total{outcome="closed"} 1`)
}

func TestFetchTitle(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<title>Source doc</title>"))
	}))
	defer page.Close()
	h := New(tokens.NewCookieJar(""), "", nil, nil).Handler()

	rec := get(t, h, "/api/fetch-title?url="+url.QueryEscape(page.URL))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":"Source doc"}`, rec.Body.String())

	rec = get(t, h, "/api/fetch-title")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/fetch-title?url="+url.QueryEscape("http://127.0.0.1:1/none"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(tokens.NewCookieJar(""), "", nil, nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
