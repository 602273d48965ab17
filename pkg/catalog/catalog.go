// Package catalog stores imported events in a local SQLite database so that
// performances can be replayed without refetching a feed.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zurustar/seismosonic/pkg/feed"
	"github.com/zurustar/seismosonic/pkg/sonify"
)

//go:embed schema.sql
var schemaSQL string

// Store is an event catalog backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Batch describes one Import call.
type Batch struct {
	ID         string
	Source     string
	ImportedAt time.Time
	Inserted   int
	Updated    int
}

// Query selects events. Zero values leave a bound open.
// Since is inclusive and Until exclusive. Events with an unknown magnitude
// pass the magnitude filter.
type Query struct {
	Since        time.Time
	Until        time.Time
	MinMagnitude float64
	Limit        int
}

// Open creates or opens the catalog at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Import stores features in one transaction. Features whose ID is already
// in the catalog are updated in place and keep their position; features
// without an ID are always inserted.
func (s *Store) Import(ctx context.Context, source string, features []feed.Feature) (Batch, error) {
	b := Batch{
		ID:         uuid.NewString(),
		Source:     source,
		ImportedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, source, imported_at_ms) VALUES (?, ?, ?)`,
		b.ID, b.Source, b.ImportedAt.UnixMilli(),
	); err != nil {
		return Batch{}, fmt.Errorf("failed to record batch: %w", err)
	}

	for i, f := range features {
		updated, err := upsert(ctx, tx, b.ID, f)
		if err != nil {
			return Batch{}, fmt.Errorf("failed to import feature %d: %w", i, err)
		}
		if updated {
			b.Updated++
		} else {
			b.Inserted++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE batches SET inserted = ?, updated = ? WHERE id = ?`,
		b.Inserted, b.Updated, b.ID,
	); err != nil {
		return Batch{}, fmt.Errorf("failed to record batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Batch{}, fmt.Errorf("failed to commit import: %w", err)
	}
	return b, nil
}

func upsert(ctx context.Context, tx *sql.Tx, batchID string, f feed.Feature) (bool, error) {
	ev := f.Event
	mag := nullFloat(ev.Magnitude)

	if f.ID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE events
			SET magnitude = ?, occurred_at_ms = ?, longitude = ?, latitude = ?,
			    depth_km = ?, place = ?, batch_id = ?
			WHERE source_id = ?`,
			mag, ev.OccurredAtMs, ev.Longitude, ev.Latitude, ev.DepthKm, ev.Place, batchID, f.ID,
		)
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return false, err
		} else if n > 0 {
			return true, nil
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO events
		    (source_id, magnitude, occurred_at_ms, longitude, latitude, depth_km, place, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(f.ID), mag, ev.OccurredAtMs, ev.Longitude, ev.Latitude, ev.DepthKm, ev.Place, batchID,
	)
	return false, err
}

// Events returns the events matching q in import order.
func (s *Store) Events(ctx context.Context, q Query) ([]sonify.Event, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "occurred_at_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "occurred_at_ms < ?")
		args = append(args, q.Until.UnixMilli())
	}
	if q.MinMagnitude > 0 {
		where = append(where, "(magnitude IS NULL OR magnitude >= ?)")
		args = append(args, q.MinMagnitude)
	}

	query := `SELECT magnitude, occurred_at_ms, longitude, latitude, depth_km, place FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []sonify.Event
	for rows.Next() {
		var (
			ev  sonify.Event
			mag sql.NullFloat64
		)
		if err := rows.Scan(&mag, &ev.OccurredAtMs, &ev.Longitude, &ev.Latitude, &ev.DepthKm, &ev.Place); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Magnitude = math.NaN()
		if mag.Valid {
			ev.Magnitude = mag.Float64
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// LastBatch returns the most recent import, or ok=false for an empty catalog.
func (s *Store) LastBatch(ctx context.Context) (Batch, bool, error) {
	var (
		b  Batch
		ms int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, imported_at_ms, inserted, updated
		FROM batches ORDER BY imported_at_ms DESC, rowid DESC LIMIT 1`,
	).Scan(&b.ID, &b.Source, &ms, &b.Inserted, &b.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, false, nil
	}
	if err != nil {
		return Batch{}, false, fmt.Errorf("failed to read last batch: %w", err)
	}
	b.ImportedAt = time.UnixMilli(ms).UTC()
	return b, true, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
