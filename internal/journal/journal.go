// Package journal keeps an append-only sqlite record of calendar mutations.
// It is an audit trail only; availability is always read from the calendar.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"bioskin/internal/events"
)

// Topics lists every topic the journal records.
var Topics = []string{
	events.AppointmentBooked,
	events.AppointmentCancelled,
	events.BlockCreated,
	events.BlockHourRemoved,
	events.BlockDeleted,
}

// Entry is one journal row.
type Entry struct {
	ID        int64     `json:"id"`
	Op        string    `json:"op"`
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Date      string    `json:"date"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal wraps the sqlite database.
type Journal struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// Open opens the database at path and runs migrations.
func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite allows one writer; keep a single connection.
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mutations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			op TEXT NOT NULL,
			event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			date TEXT,
			detail TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mutations_event ON mutations(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mutations_created ON mutations(created_at)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Attach subscribes the journal to every mutation topic on bus.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(func(ev events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return j.Record(ctx, ev)
	}, Topics...)
}

// Record writes one row per event id in the mutation.
func (j *Journal) Record(ctx context.Context, ev events.Event) error {
	m, err := ev.Decode()
	if err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO mutations (op, event_id, kind, date, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	detail := describe(m)
	for _, id := range m.EventIDs {
		if _, err := stmt.ExecContext(ctx, ev.Type, id, m.Kind, m.Date, detail, created.UTC()); err != nil {
			return fmt.Errorf("insert %s: %w", ev.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	j.logger.Debug().Str("op", ev.Type).Int("rows", len(m.EventIDs)).Msg("journal recorded")
	return nil
}

func describe(m events.Mutation) string {
	var parts []string
	if m.Reason != "" {
		parts = append(parts, "reason="+m.Reason)
	}
	if len(m.Hours) > 0 {
		hours := make([]string, len(m.Hours))
		for i, h := range m.Hours {
			hours[i] = fmt.Sprintf("%02d", h)
		}
		parts = append(parts, "hours="+strings.Join(hours, ","))
	}
	if m.BatchID != "" {
		parts = append(parts, "batch="+m.BatchID)
	}
	if m.Failed > 0 {
		parts = append(parts, fmt.Sprintf("failed=%d", m.Failed))
	}
	return strings.Join(parts, " ")
}

// Recent returns the latest rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, op, event_id, kind, COALESCE(date, ''), COALESCE(detail, ''), created_at
		 FROM mutations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Op, &e.EventID, &e.Kind, &e.Date, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes rows created before cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM mutations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
