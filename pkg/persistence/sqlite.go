package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS device_state (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	version          INTEGER NOT NULL,
	saved_at         INTEGER NOT NULL,
	password_set     INTEGER NOT NULL,
	password         TEXT    NOT NULL,
	password_version INTEGER NOT NULL,
	password_default INTEGER NOT NULL,
	device_id        TEXT    NOT NULL,
	device_name      TEXT    NOT NULL,
	wifi_ssid        TEXT    NOT NULL,
	wifi_psk         TEXT    NOT NULL,
	wifi_configured  INTEGER NOT NULL
);`

// SQLiteBackend stores state in a single-row SQLite table.
type SQLiteBackend struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteBackend opens (or creates) the database at path.
// Use ":memory:" for an in-memory database.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Load reads the state row.
// Returns nil, nil if no row exists.
func (b *SQLiteBackend) Load() (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		s       State
		savedAt int64
	)
	err := b.db.QueryRow(`SELECT version, saved_at, password_set, password, password_version,
		password_default, device_id, device_name, wifi_ssid, wifi_psk, wifi_configured
		FROM device_state WHERE id = 1`).Scan(
		&s.Version, &savedAt, &s.PasswordSet, &s.Password.Password, &s.Password.Version,
		&s.Password.IsDefault, &s.DeviceID, &s.DeviceName, &s.Wifi.SSID, &s.Wifi.PreSharedKey,
		&s.Wifi.Configured,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.SavedAt = time.Unix(0, savedAt)
	return &s, nil
}

// Save upserts the state row.
func (b *SQLiteBackend) Save(state *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state.Version = StateVersion
	state.SavedAt = time.Now()

	_, err := b.db.Exec(`INSERT INTO device_state (id, version, saved_at, password_set, password,
		password_version, password_default, device_id, device_name, wifi_ssid, wifi_psk, wifi_configured)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			saved_at = excluded.saved_at,
			password_set = excluded.password_set,
			password = excluded.password,
			password_version = excluded.password_version,
			password_default = excluded.password_default,
			device_id = excluded.device_id,
			device_name = excluded.device_name,
			wifi_ssid = excluded.wifi_ssid,
			wifi_psk = excluded.wifi_psk,
			wifi_configured = excluded.wifi_configured`,
		state.Version, state.SavedAt.UnixNano(), state.PasswordSet, state.Password.Password,
		state.Password.Version, state.Password.IsDefault, state.DeviceID, state.DeviceName,
		state.Wifi.SSID, state.Wifi.PreSharedKey, state.Wifi.Configured,
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear deletes the state row.
func (b *SQLiteBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.db.Exec(`DELETE FROM device_state`)
	return err
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Compile-time interface satisfaction check.
var _ Backend = (*SQLiteBackend)(nil)
