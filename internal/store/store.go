// Package store persists fired alerts and diagnostics to a SQLite
// database for later inspection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/raidwatch/raidwatch-go/internal/diag"
	"github.com/raidwatch/raidwatch-go/pkg/raidwatch/output"
)

// Store is an append-mostly history of alerts and diagnostics.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

// Open opens or creates a SQLite database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		id        TEXT PRIMARY KEY,
		severity  TEXT NOT NULL,
		text      TEXT NOT NULL,
		sound     TEXT,
		source    TEXT NOT NULL,
		alert_id  TEXT NOT NULL,
		fired_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_fired ON alerts(fired_at DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		message     TEXT,
		fields      TEXT,
		observed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_observed ON diagnostics(observed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AlertRecord is one stored alert.
type AlertRecord struct {
	ID       string
	Severity string
	Text     string
	Sound    string
	Source   string
	AlertID  string
	FiredAt  time.Time
}

// DiagnosticRecord is one stored diagnostic.
type DiagnosticRecord struct {
	ID         string
	Kind       string
	Message    string
	Fields     map[string]string
	ObservedAt time.Time
}

// SaveAlert appends one fired alert and returns its row id.
func (s *Store) SaveAlert(ctx context.Context, a output.Alert) (string, error) {
	id := s.newID()
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, severity, text, sound, source, alert_id, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(a.Severity), a.Text, a.Sound, a.Source, a.ID,
		at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("save alert: %w", err)
	}
	return id, nil
}

// SaveDiagnostic appends one diagnostic event.
func (s *Store) SaveDiagnostic(ctx context.Context, d diag.Event) (string, error) {
	id := s.newID()
	at := d.Time
	if at.IsZero() {
		at = time.Now()
	}

	var fields sql.NullString
	if len(d.Fields) > 0 {
		b, err := json.Marshal(d.Fields)
		if err != nil {
			return "", fmt.Errorf("encode fields: %w", err)
		}
		fields = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diagnostics (id, kind, message, fields, observed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, string(d.Kind), d.Message, fields,
		at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("save diagnostic: %w", err)
	}
	return id, nil
}

// Query filters history listings. Zero values mean no filter.
type Query struct {
	Since    time.Time
	Source   string // "trigger" or "timeline"
	Severity string
	Kind     string // diagnostics only
	Limit    int    // 0 = DefaultQueryLimit
}

// DefaultQueryLimit bounds unpaged history listings.
const DefaultQueryLimit = 200

// Alerts lists stored alerts, newest first.
func (s *Store) Alerts(ctx context.Context, q Query) ([]AlertRecord, error) {
	var conds []string
	var args []any
	if !q.Since.IsZero() {
		conds = append(conds, "fired_at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if q.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, q.Source)
	}
	if q.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, q.Severity)
	}

	query := "SELECT id, severity, text, sound, source, alert_id, fired_at FROM alerts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += " ORDER BY fired_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var r AlertRecord
		var sound sql.NullString
		var firedAt string
		if err := rows.Scan(&r.ID, &r.Severity, &r.Text, &sound, &r.Source, &r.AlertID, &firedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		r.Sound = sound.String
		r.FiredAt, err = time.Parse(time.RFC3339Nano, firedAt)
		if err != nil {
			return nil, fmt.Errorf("parse fired_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Diagnostics lists stored diagnostics, newest first.
func (s *Store) Diagnostics(ctx context.Context, q Query) ([]DiagnosticRecord, error) {
	var conds []string
	var args []any
	if !q.Since.IsZero() {
		conds = append(conds, "observed_at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, q.Kind)
	}

	query := "SELECT id, kind, message, fields, observed_at FROM diagnostics"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += " ORDER BY observed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var records []DiagnosticRecord
	for rows.Next() {
		var r DiagnosticRecord
		var fields sql.NullString
		var observedAt string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Message, &fields, &observedAt); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if fields.Valid {
			if err := json.Unmarshal([]byte(fields.String), &r.Fields); err != nil {
				return nil, fmt.Errorf("decode fields: %w", err)
			}
		}
		r.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parse observed_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
