// Package persistence records a run's per-step metrics and journal in SQLite,
// and archives the journal as compressed JSONL when the run ends.
// Each run starts from empty tables; nothing is restored on restart.
package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/wastesim/internal/engine"
)

// DB wraps a SQLite connection for run recording.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

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
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			return err
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS steps (
		step INTEGER PRIMARY KEY,
		collected INTEGER NOT NULL,
		sorted INTEGER NOT NULL,
		recycled INTEGER NOT NULL,
		remaining INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		step INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_step ON events(step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun clears any previous run and stores the new run's metadata.
func (db *DB) BeginRun(m *engine.Model) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"steps", "events", "run_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	p := m.Params
	meta := map[string]string{
		"run_id":     m.RunID,
		"seed":       strconv.FormatInt(m.Seed, 10),
		"width":      strconv.Itoa(p.Width),
		"height":     strconv.Itoa(p.Height),
		"collectors": strconv.Itoa(p.Collectors),
		"sorters":    strconv.Itoa(p.Sorters),
		"recyclers":  strconv.Itoa(p.Recyclers),
		"max_steps":  strconv.Itoa(p.MaxSteps),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO run_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run recording started", "run_id", m.RunID)
	return nil
}

// RecordStep stores the metrics row of one completed step.
func (db *DB) RecordStep(row engine.Metrics) error {
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO steps
		(step, collected, sorted, recycled, remaining)
		VALUES (:step, :collected, :sorted, :recycled, :remaining)`, row)
	if err != nil {
		return fmt.Errorf("insert step %d: %w", row.Step, err)
	}
	return nil
}

// SaveEvents appends journal records to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (step, description, category) VALUES (?, ?, ?)",
			e.Step, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// StatsHistory returns the most recent limit step rows in ascending step
// order. A limit of 0 or less returns every row.
func (db *DB) StatsHistory(limit int) ([]engine.Metrics, error) {
	var rows []engine.Metrics
	var err error
	if limit > 0 {
		err = db.conn.Select(&rows, `SELECT * FROM (
			SELECT step, collected, sorted, recycled, remaining FROM steps ORDER BY step DESC LIMIT ?
		) ORDER BY step ASC`, limit)
	} else {
		err = db.conn.Select(&rows, "SELECT step, collected, sorted, recycled, remaining FROM steps ORDER BY step ASC")
	}
	return rows, err
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT step, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// Recorder persists each completed step as the engine reports it.
type Recorder struct {
	DB      *DB
	Journal *engine.Journal

	saved int // Journal records already written
}

// OnStep writes the step's metrics and any new journal records. Errors are
// logged; a recording failure never stops the simulation.
func (r *Recorder) OnStep(snap engine.Snapshot) {
	if err := r.DB.RecordStep(snap.Metrics); err != nil {
		slog.Error("record step failed", "step", snap.Step, "error", err)
	}
	r.Flush()
}

// Flush writes journal records not yet saved.
func (r *Recorder) Flush() {
	if r.Journal == nil {
		return
	}
	fresh := r.Journal.Since(r.saved)
	if err := r.DB.SaveEvents(fresh); err != nil {
		slog.Error("save events failed", "count", len(fresh), "error", err)
		return
	}
	r.saved += len(fresh)
}
