// Package persistence stores save slots, the per-turn history and run metadata
// in SQLite.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/fjordheim/internal/engine"
)

// ErrNoSave is returned when a slot holds no snapshot.
var ErrNoSave = errors.New("no save in slot")

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// SaveInfo describes a save slot without its data.
type SaveInfo struct {
	Slot    string `db:"slot" json:"slot"`
	Turn    int    `db:"turn" json:"turn"`
	SavedAt int64  `db:"saved_at" json:"savedAt"` // unix milliseconds
}

// TurnRow is one line of the turn history.
type TurnRow struct {
	Turn       int     `db:"turn" json:"turn"`
	Season     string  `db:"season" json:"season"`
	Population float64 `db:"population" json:"population"`
	Food       float64 `db:"food" json:"food"`
	Morale     float64 `db:"morale" json:"morale"`
	Deaths     int     `db:"deaths" json:"deaths"`
	Births     int     `db:"births" json:"births"`
	Events     string  `db:"events" json:"events"` // comma-separated event ids
	GameOver   string  `db:"game_over" json:"gameOver,omitempty"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		slot TEXT PRIMARY KEY,
		turn INTEGER NOT NULL,
		saved_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turn_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slot TEXT NOT NULL,
		turn INTEGER NOT NULL,
		season TEXT NOT NULL,
		population REAL NOT NULL,
		food REAL NOT NULL,
		morale REAL NOT NULL,
		deaths INTEGER NOT NULL,
		births INTEGER NOT NULL,
		events TEXT NOT NULL,
		game_over TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slot TEXT NOT NULL,
		turn INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turn_log_slot ON turn_log(slot, turn);
	CREATE INDEX IF NOT EXISTS idx_events_slot ON events(slot, turn);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot writes snap to slot, replacing what was there.
func (db *DB) SaveSnapshot(slot string, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	turn := int(snap.Resources["turn"])
	_, err = db.conn.Exec(
		"INSERT OR REPLACE INTO saves (slot, turn, saved_at, data) VALUES (?, ?, ?, ?)",
		slot, turn, snap.Timestamp, string(data),
	)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", slot, err)
	}
	slog.Debug("snapshot saved", "slot", slot, "turn", turn, "bytes", len(data))
	return nil
}

// LoadSnapshot returns the raw snapshot in slot, or ErrNoSave.
func (db *DB) LoadSnapshot(slot string) ([]byte, error) {
	var data string
	err := db.conn.Get(&data, "SELECT data FROM saves WHERE slot = ?", slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return []byte(data), nil
}

// ListSaves returns every slot, most recently saved first.
func (db *DB) ListSaves() ([]SaveInfo, error) {
	var saves []SaveInfo
	err := db.conn.Select(&saves, "SELECT slot, turn, saved_at FROM saves ORDER BY saved_at DESC, slot")
	return saves, err
}

// DeleteSave removes slot along with its history.
func (db *DB) DeleteSave(slot string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"saves", "turn_log", "events"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE slot = ?", slot); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// RecordTurn appends a turn to the history of slot, with the log entries it
// produced.
func (db *DB) RecordTurn(slot string, rep engine.TurnReport, entries []engine.LogEntry) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO turn_log
		(slot, turn, season, population, food, morale, deaths, births, events, game_over)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slot, rep.Turn, rep.Season,
		rep.Resources["population"], rep.Resources["food"], rep.Resources["morale"],
		rep.Deaths, rep.Births, strings.Join(rep.Events, ","), rep.GameOver,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, e := range entries {
		_, err := tx.Exec(
			"INSERT INTO events (slot, turn, description, category) VALUES (?, ?, ?, ?)",
			slot, e.Turn, e.Description, e.Category,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// TurnHistory returns up to limit most recent turns of slot, oldest first.
func (db *DB) TurnHistory(slot string, limit int) ([]TurnRow, error) {
	var rows []TurnRow
	err := db.conn.Select(&rows, `
		SELECT turn, season, population, food, morale, deaths, births, events, game_over
		FROM (SELECT * FROM turn_log WHERE slot = ? ORDER BY id DESC LIMIT ?)
		ORDER BY id`,
		slot, limit,
	)
	return rows, err
}

// RecentEvents returns the most recent N log entries of slot, newest first.
func (db *DB) RecentEvents(slot string, limit int) ([]engine.LogEntry, error) {
	var events []engine.LogEntry
	err := db.conn.Select(&events,
		"SELECT turn, description, category FROM events WHERE slot = ? ORDER BY id DESC LIMIT ?",
		slot, limit,
	)
	return events, err
}

// ClearHistory drops the turn history of slot, for a new game in the same slot.
func (db *DB) ClearHistory(slot string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"turn_log", "events"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE slot = ?", slot); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}
