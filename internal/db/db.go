package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"plaichat/internal/models"
)

// Open opens (creating if needed) the client state database at path.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging sqlite")
	}

	// One writer; sqlite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_settings_updated_at ON settings(updated_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "applying schema")
		}
	}

	return db, nil
}

func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "reading setting %s", key)
	}
	return value, true, nil
}

func SetSetting(db *sql.DB, key, value string, nowUnix int64) error {
	_, err := db.Exec(
		`INSERT INTO settings(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		nowUnix,
	)
	return errors.Wrapf(err, "writing setting %s", key)
}

func DeleteSetting(db *sql.DB, key string) error {
	_, err := db.Exec("DELETE FROM settings WHERE key = ?", key)
	return errors.Wrapf(err, "deleting setting %s", key)
}

// ListSettings returns every setting, most recently written first.
func ListSettings(db *sql.DB) ([]models.Setting, error) {
	rows, err := db.Query("SELECT key, value, updated_at FROM settings ORDER BY updated_at DESC, key ASC")
	if err != nil {
		return nil, errors.Wrap(err, "listing settings")
	}
	defer rows.Close()

	items := []models.Setting{}
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAtUnix); err != nil {
			return nil, errors.Wrap(err, "scanning setting")
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating settings")
	}
	return items, nil
}
