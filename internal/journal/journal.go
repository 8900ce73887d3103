// Package journal keeps the order history in SQLite: one row per applied
// order change, with the full resulting stack.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kingrea/layerdeck/internal/order"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal: closed")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS order_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		seq INTEGER NOT NULL,
		mode TEXT NOT NULL CHECK (mode IN ('full','view-only','rebuild')),
		cause TEXT NOT NULL DEFAULT '',
		dragged TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL,
		entries TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_changes_session ON order_changes(session, seq)`,
}

// StackEntry is one persisted row of a recorded stack.
type StackEntry struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ZIndex      int    `json:"z"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Record is one journal row.
type Record struct {
	Session string
	Seq     uint64
	Mode    order.ChangeMode
	Trigger string
	Dragged string
	Target  string
	At      time.Time
	Stack   []StackEntry
}

// IDs lists the recorded stack top first.
func (r Record) IDs() []string {
	out := make([]string, len(r.Stack))
	for i, entry := range r.Stack {
		out[i] = entry.ID
	}
	return out
}

// Journal is the SQLite-backed history. It is safe for concurrent use.
type Journal struct {
	db      *sql.DB
	session string
	closed  atomic.Bool
}

// Option customizes a Journal.
type Option func(*Journal)

// WithSession labels rows with a fixed session id instead of a random one.
func WithSession(id string) Option {
	return func(j *Journal) {
		if strings.TrimSpace(id) != "" {
			j.session = id
		}
	}
}

// Open creates or opens the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping %s: %w", path, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: migrate: %w", err)
		}
	}
	j := &Journal{db: db, session: uuid.NewString()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Session returns the id rows from this process are labelled with.
func (j *Journal) Session() string { return j.session }

// Record appends one order change.
func (j *Journal) Record(ctx context.Context, change order.OrderChange) error {
	if j == nil || j.closed.Load() {
		return ErrClosed
	}
	stack := make([]StackEntry, len(change.Entries))
	for i, entry := range change.Entries {
		stack[i] = StackEntry{ID: entry.ID, Kind: entry.Kind.String(), ZIndex: entry.ZIndex, Placeholder: entry.Placeholder()}
	}
	encoded, err := json.Marshal(stack)
	if err != nil {
		return fmt.Errorf("journal: encode stack: %w", err)
	}
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO order_changes (session, seq, mode, cause, dragged, target, at, entries)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, int64(change.Seq), string(change.Mode), change.Trigger, change.Dragged, change.Target,
		at.UTC().Format(time.RFC3339Nano), string(encoded))
	if err != nil {
		return fmt.Errorf("journal: record seq %d: %w", change.Seq, err)
	}
	return nil
}

// History returns up to limit records, newest first. limit <= 0 returns all.
func (j *Journal) History(ctx context.Context, limit int) ([]Record, error) {
	if j == nil || j.closed.Load() {
		return nil, ErrClosed
	}
	query := `SELECT session, seq, mode, cause, dragged, target, at, entries
		FROM order_changes ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			seq     int64
			mode    string
			at      string
			entries string
		)
		if err := rows.Scan(&rec.Session, &seq, &mode, &rec.Trigger, &rec.Dragged, &rec.Target, &at, &entries); err != nil {
			return nil, fmt.Errorf("journal: scan history: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Mode = order.ChangeMode(mode)
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("journal: parse time %q: %w", at, err)
		}
		if err := json.Unmarshal([]byte(entries), &rec.Stack); err != nil {
			return nil, fmt.Errorf("journal: decode stack: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: read history: %w", err)
	}
	return out, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}

// FormatHistory renders records as a fixed-width table, newest first.
func FormatHistory(records []Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s%-11s%-22s%-20s%s\n", "SEQ", "MODE", "AT", "MOVE", "STACK")
	for _, rec := range records {
		move := rec.Trigger
		if rec.Dragged != "" {
			move = rec.Dragged + " > " + rec.Target
		}
		if move == "" {
			move = "-"
		}
		fmt.Fprintf(&b, "%-6d%-11s%-22s%-20s%s\n", rec.Seq, rec.Mode, rec.At.UTC().Format(time.DateTime), move, strings.Join(rec.IDs(), " "))
	}
	return b.String()
}
