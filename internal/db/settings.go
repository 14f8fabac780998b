package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// SettingsConfigKey holds the runtime configuration overrides.
const SettingsConfigKey = "config"

// SaveSetting stores value under key, replacing any previous value.
func (db *DB) SaveSetting(key string, value []byte) error {
	_, err := db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}
	return nil
}

// LoadSetting returns the value stored under key, or ErrNotFound.
func (db *DB) LoadSetting(key string) ([]byte, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load setting %q: %w", key, err)
	}
	return []byte(value), nil
}
