package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a stored event.
type EventKind string

const (
	KindAlert  EventKind = "ALERT"
	KindPump   EventKind = "PUMP"
	KindBoiler EventKind = "BOILER"
	KindSystem EventKind = "SYSTEM"
)

// timeLayout is fixed-width UTC so that text comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Event is one row of the history.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       EventKind `json:"kind"`
	Zone       string    `json:"zone,omitempty"`
	Code       string    `json:"code,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Message    string    `json:"message"`
}

// Filter selects events for List. Zero fields do not filter.
type Filter struct {
	Zone  string
	Kind  EventKind
	From  time.Time // inclusive
	To    time.Time // inclusive
	Limit int
}

// EventStore is the SQLite-backed event history.
type EventStore struct {
	db *sql.DB
}

// NewEventStore wraps an open database.
func NewEventStore(db *sql.DB) *EventStore { return &EventStore{db: db} }

// Append inserts an event. A missing ID is generated and a zero time is set
// to now.
func (r *EventStore) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO heating_events (id, occurred_at, kind, zone, code, severity, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.OccurredAt.UTC().Format(timeLayout),
		strings.ToUpper(strings.TrimSpace(string(e.Kind))),
		e.Zone,
		e.Code,
		e.Severity,
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List returns events matching f, oldest first.
func (r *EventStore) List(ctx context.Context, f Filter) ([]Event, error) {
	var (
		conds []string
		args  []any
	)

	if f.Zone != "" {
		conds = append(conds, "zone = ?")
		args = append(args, f.Zone)
	}
	if kind := strings.ToUpper(strings.TrimSpace(string(f.Kind))); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	q := `SELECT id, occurred_at, kind, zone, code, severity, message FROM heating_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 64)
	for rows.Next() {
		var (
			ev Event
			at string
		)
		if err := rows.Scan(&ev.ID, &at, &ev.Kind, &ev.Zone, &ev.Code, &ev.Severity, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse time %q: %w", ev.ID, at, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
