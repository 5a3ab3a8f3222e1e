package tokens

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaichat/internal/db"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestCookieJar(t *testing.T) {
	jar := NewCookieJar(" chat_session_id=abc; broken; user_lang=es ;active_thread_id=t=1")

	v, ok := jar.Get(SessionID)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	v, ok = jar.Get(ActiveThreadID)
	assert.True(t, ok)
	assert.Equal(t, "t=1", v, "values keep embedded '='")

	_, ok = jar.Get("broken")
	assert.False(t, ok)

	jar.Set(UserLang, "en")
	jar.Set(AccessToken, "tok")
	assert.Equal(t, "chat_session_id=abc; user_lang=en; active_thread_id=t=1; chat_session_token=tok", jar.String())
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	conn, err := db.Open(path)
	require.NoError(t, err)

	s := NewSQLiteStore(conn, nil)
	_, ok := s.Get(AccessToken)
	assert.False(t, ok)
	s.Set(AccessToken, "a1")
	require.NoError(t, conn.Close())

	conn, err = db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	reopened := NewSQLiteStore(conn, nil)
	v, ok := reopened.Get(AccessToken)
	assert.True(t, ok)
	assert.Equal(t, "a1", v)

	reopened.Forget(AccessToken)
	_, ok = reopened.Get(AccessToken)
	assert.False(t, ok)
}

func TestSessionIDFromToken(t *testing.T) {
	id, err := SessionIDFromToken(signed(t, jwt.MapClaims{"id": "sess-1"}))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)

	_, err = SessionIDFromToken(signed(t, jwt.MapClaims{"sub": "x"}))
	assert.Error(t, err)

	_, err = SessionIDFromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	access := signed(t, jwt.MapClaims{"id": "sess-1"})

	t.Run("stores tokens and keeps existing thread", func(t *testing.T) {
		jar := NewCookieJar("active_thread_id=existing")
		id, err := Bootstrap(jar, BootstrapParams{Access: access, Refresh: "r1", ThreadID: "new", UserName: "Ana"})
		require.NoError(t, err)
		assert.Equal(t, "sess-1", id)

		for name, want := range map[string]string{
			AccessToken:    access,
			RefreshToken:   "r1",
			SessionID:      "sess-1",
			ActiveThreadID: "existing",
			UserName:       "Ana",
		} {
			got, ok := jar.Get(name)
			assert.True(t, ok, name)
			assert.Equal(t, want, got, name)
		}
		_, ok := jar.Get(GreetingMessage)
		assert.False(t, ok)
	})

	t.Run("sets thread when absent", func(t *testing.T) {
		jar := NewCookieJar("")
		_, err := Bootstrap(jar, BootstrapParams{Access: access, Refresh: "r1", ThreadID: "t9"})
		require.NoError(t, err)
		v, _ := jar.Get(ActiveThreadID)
		assert.Equal(t, "t9", v)
	})

	t.Run("missing params", func(t *testing.T) {
		_, err := Bootstrap(NewCookieJar(""), BootstrapParams{Access: access})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingParam))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "refresh")
		assert.Contains(t, verr.Fields, "threadId")
	})
}

func TestParseBootstrapURLAndApplyRefresh(t *testing.T) {
	access := signed(t, jwt.MapClaims{"id": "sess-2"})
	p, err := ParseBootstrapURL("https://ui.example.com/chats/sess-2?access=" + access + "&refresh=rt")
	require.NoError(t, err)
	assert.Equal(t, "rt", p.Refresh)

	jar := NewCookieJar("active_thread_id=t1")
	require.NoError(t, ApplyRefresh(jar, p))
	v, _ := jar.Get(AccessToken)
	assert.Equal(t, access, v)
	v, _ = jar.Get(ActiveThreadID)
	assert.Equal(t, "t1", v)
}
