// Package store keeps run history in SQLite: one row per script run plus
// its log lines and device command records, and a device event journal.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/holla2040/droidscript/internal/script/result"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusStopped = "stopped"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Run struct {
	ID           string                 `json:"id"`
	ScriptName   string                 `json:"script_name"`
	DeviceSerial string                 `json:"device_serial,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	Status       string                 `json:"status"`
	Error        string                 `json:"error,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
}

type CommandRow struct {
	Seq int `json:"seq"`
	result.CommandRecord
}

type DeviceEvent struct {
	ID        int64     `json:"id"`
	Serial    string    `json:"serial"`
	Agent     string    `json:"agent"`
	EventType string    `json:"event_type"` // "online", "stale", "offline", ...
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    script_name TEXT NOT NULL,
    device_serial TEXT DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT,
    status TEXT NOT NULL,
    error TEXT DEFAULT '',
    duration_ms INTEGER DEFAULT 0,
    variables TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_logs (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    entry TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_commands (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    line INTEGER NOT NULL,
    command TEXT NOT NULL,
    args TEXT DEFAULT '',
    success INTEGER NOT NULL,
    value TEXT DEFAULT '',
    error TEXT DEFAULT '',
    duration_ms INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS device_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    serial TEXT NOT NULL,
    agent TEXT NOT NULL,
    event_type TEXT NOT NULL,
    details TEXT DEFAULT '',
    timestamp TEXT NOT NULL
);`

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(id, scriptName, serial string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, script_name, device_serial, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, scriptName, serial, s.stamp(), StatusRunning,
	)
	return err
}

// FinishRun stores the outcome of a run with its logs and command records
// in one transaction.
func (s *Store) FinishRun(id string, res *result.ExecutionResult, stopped bool) (err error) {
	status := StatusPassed
	switch {
	case stopped:
		status = StatusStopped
	case !res.Success:
		status = StatusFailed
	}
	vars, err := json.Marshal(res.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	out, err := tx.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, error = ?, duration_ms = ?, variables = ? WHERE id = ?`,
		s.stamp(), status, res.Error, res.Duration.Milliseconds(), string(vars), id,
	)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	for i, entry := range res.Logs {
		if _, err = tx.Exec(`INSERT INTO run_logs (run_id, seq, entry) VALUES (?, ?, ?)`, id, i, entry); err != nil {
			return err
		}
	}
	for i, c := range res.Commands {
		success := 0
		if c.Success {
			success = 1
		}
		if _, err = tx.Exec(
			`INSERT INTO run_commands (run_id, seq, line, command, args, success, value, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, c.Line, c.Command, c.Args, success, c.Value, c.Error, c.DurationMs,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordDeviceEvent appends to the device journal.
func (s *Store) RecordDeviceEvent(serial, agent, eventType, details string) error {
	_, err := s.db.Exec(
		`INSERT INTO device_events (serial, agent, event_type, details, timestamp) VALUES (?, ?, ?, ?, ?)`,
		serial, agent, eventType, details, s.stamp(),
	)
	return err
}

const runColumns = `id, script_name, device_serial, started_at, finished_at, status, error, duration_ms, variables`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var startedAt, vars string
	var finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.ScriptName, &r.DeviceSerial, &startedAt, &finishedAt, &r.Status, &r.Error, &r.DurationMs, &vars); err != nil {
		return nil, err
	}
	var err error
	r.StartedAt, err = time.Parse(timeFormat, startedAt)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeFormat, finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	if vars != "" && vars != "null" {
		if err := json.Unmarshal([]byte(vars), &r.Variables); err != nil {
			return nil, fmt.Errorf("run %s variables: %w", r.ID, err)
		}
	}
	return &r, nil
}

// QueryRuns lists runs newest first. limit <= 0 means no limit.
func (s *Store) QueryRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, _rowid_ DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns nil, nil when id is unknown.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) QueryLogs(runID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT entry FROM run_logs WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) QueryCommands(runID string) ([]CommandRow, error) {
	rows, err := s.db.Query(
		`SELECT seq, line, command, args, success, value, error, duration_ms FROM run_commands WHERE run_id = ? ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cmds := []CommandRow{}
	for rows.Next() {
		var c CommandRow
		var success int
		if err := rows.Scan(&c.Seq, &c.Line, &c.Command, &c.Args, &success, &c.Value, &c.Error, &c.DurationMs); err != nil {
			return nil, err
		}
		c.Success = success != 0
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

func (s *Store) QueryDeviceEvents(serial string) ([]DeviceEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, serial, agent, event_type, details, timestamp FROM device_events WHERE serial = ? ORDER BY id ASC`,
		serial,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []DeviceEvent{}
	for rows.Next() {
		var e DeviceEvent
		var ts string
		if err := rows.Scan(&e.ID, &e.Serial, &e.Agent, &e.EventType, &e.Details, &ts); err != nil {
			return nil, err
		}
		e.Timestamp, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneRuns deletes finished runs that started before cutoff, with their
// logs and commands, and returns how many runs went.
func (s *Store) PruneRuns(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		StatusRunning, cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
