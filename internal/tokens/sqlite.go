package tokens

import (
	"database/sql"
	"sync"
	"time"

	"plaichat/internal/db"
	"plaichat/internal/logger"
)

// SQLiteStore persists cookie-equivalent state between runs. Reads are
// served from a write-through cache.
type SQLiteStore struct {
	conn *sql.DB
	log  *logger.Logger
	now  func() time.Time

	mu    sync.RWMutex
	cache map[string]string
}

func NewSQLiteStore(conn *sql.DB, log *logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Discard()
	}
	return &SQLiteStore{
		conn:  conn,
		log:   log.WithComponent("tokens"),
		now:   time.Now,
		cache: map[string]string{},
	}
}

func (s *SQLiteStore) Get(name string) (string, bool) {
	s.mu.RLock()
	v, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return v, true
	}

	v, ok, err := db.GetSetting(s.conn, name)
	if err != nil {
		s.log.Warn("reading stored value failed", "name", name, "error", err)
		return "", false
	}
	if ok {
		s.mu.Lock()
		s.cache[name] = v
		s.mu.Unlock()
	}
	return v, ok
}

// Set never fails from the caller's point of view; a write error is logged
// and the value still serves reads for the rest of the run.
func (s *SQLiteStore) Set(name, value string) {
	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	if err := db.SetSetting(s.conn, name, value, s.now().Unix()); err != nil {
		s.log.Warn("persisting value failed", "name", name, "error", err)
	}
}

// Forget removes a value from memory and disk.
func (s *SQLiteStore) Forget(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()

	if err := db.DeleteSetting(s.conn, name); err != nil {
		s.log.Warn("deleting value failed", "name", name, "error", err)
	}
}
