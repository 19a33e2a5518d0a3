// Package runlog keeps a history of runs in SQLite: when each ran, how it
// ended and how much it found. Appointment details are not stored; every
// run starts from a clean slate.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/slotwatch/internal/scrape"
)

// Entry is one recorded run.
type Entry struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     scrape.Status `json:"status"`
	Days       int           `json:"days"`
	Slots      int           `json:"slots"`
	Months     int           `json:"months"`
	Error      string        `json:"error,omitempty"`
	Artifact   string        `json:"artifact,omitempty"`
}

// Store is the run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores the outcome of a run.
func (s *Store) Record(ctx context.Context, res scrape.Result) error {
	slots := 0
	for _, n := range res.Slots() {
		slots += n
	}
	_, err := execRetry(ctx, s.db,
		`INSERT OR REPLACE INTO runs (id, url, started_at, finished_at, status, days, slots, months, error, artifact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.URL, res.StartedAt.UnixMilli(), res.FinishedAt.UnixMilli(), string(res.Status),
		len(res.Days), slots, res.Months, res.Err, res.Artifact,
	)
	if err != nil {
		return fmt.Errorf("runlog: record: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, started_at, finished_at, status, days, slots, months, error, artifact
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("runlog: recent: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e              Entry
			started, ended int64
			status         string
		)
		if err := rows.Scan(&e.ID, &e.URL, &started, &ended, &status, &e.Days, &e.Slots, &e.Months, &e.Error, &e.Artifact); err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(ended)
		e.Status = scrape.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runlog: rows: %w", err)
	}
	return entries, nil
}

// Cleanup deletes runs that started before now minus olderThan and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := execRetry(ctx, s.db, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("runlog: cleanup: %w", err)
	}
	return res.RowsAffected()
}
