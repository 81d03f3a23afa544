package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/synheart/synheart-seizure/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id       TEXT PRIMARY KEY,
	patient_id       TEXT NOT NULL,
	trigger_kind     TEXT NOT NULL,
	started_at_ms    INTEGER NOT NULL,
	ended_at_ms      INTEGER NOT NULL,
	duration_ms      INTEGER NOT NULL,
	medication_given INTEGER NOT NULL,
	breathing_normal INTEGER NOT NULL,
	injuries_present INTEGER NOT NULL,
	escalated        INTEGER NOT NULL,
	attempts         TEXT NOT NULL,
	reported_at_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS episodes_started ON episodes (started_at_ms DESC);
`

// SQLiteStore keeps the local, offline-first episode history.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" works
// for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: sqlite serializes writers and :memory: is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the summary.
func (s *SQLiteStore) Save(ctx context.Context, summary models.EpisodeSummary) error {
	attempts, err := json.Marshal(summary.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO episodes (
			episode_id, patient_id, trigger_kind, started_at_ms, ended_at_ms, duration_ms,
			medication_given, breathing_normal, injuries_present, escalated, attempts, reported_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.EpisodeID,
		summary.PatientID,
		string(summary.Trigger),
		summary.StartedAt.UnixMilli(),
		summary.EndedAt.UnixMilli(),
		summary.Duration.Milliseconds(),
		summary.Checklist.MedicationGiven,
		summary.Checklist.BreathingNormal,
		summary.Checklist.InjuriesPresent,
		summary.Escalated,
		string(attempts),
		summary.ReportedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save episode %s: %w", summary.EpisodeID, err)
	}
	return nil
}

const sqliteColumns = `episode_id, patient_id, trigger_kind, started_at_ms, ended_at_ms, duration_ms,
	medication_given, breathing_normal, injuries_present, escalated, attempts, reported_at_ms`

// List returns up to limit summaries, newest first. limit <= 0 means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.EpisodeSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM episodes ORDER BY started_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []models.EpisodeSummary
	for rows.Next() {
		summary, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Get returns one summary or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, episodeID string) (models.EpisodeSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM episodes WHERE episode_id = ?`, episodeID)
	summary, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return summary, ErrNotFound
	}
	return summary, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (models.EpisodeSummary, error) {
	var (
		s                              models.EpisodeSummary
		trigger, attempts              string
		startedMs, endedMs, durationMs int64
		reportedMs                     int64
	)
	err := row.Scan(
		&s.EpisodeID, &s.PatientID, &trigger, &startedMs, &endedMs, &durationMs,
		&s.Checklist.MedicationGiven, &s.Checklist.BreathingNormal, &s.Checklist.InjuriesPresent,
		&s.Escalated, &attempts, &reportedMs,
	)
	if err != nil {
		return s, err
	}
	s.Trigger = models.Trigger(trigger)
	s.StartedAt = time.UnixMilli(startedMs).UTC()
	s.EndedAt = time.UnixMilli(endedMs).UTC()
	s.Duration = time.Duration(durationMs) * time.Millisecond
	s.ReportedAt = time.UnixMilli(reportedMs).UTC()
	if err := json.Unmarshal([]byte(attempts), &s.Attempts); err != nil {
		return s, fmt.Errorf("decode attempts of %s: %w", s.EpisodeID, err)
	}
	return s, nil
}
