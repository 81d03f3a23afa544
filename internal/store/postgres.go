package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seizure_episodes (
	episode_id           TEXT PRIMARY KEY,
	patient_id           TEXT NOT NULL,
	trigger_kind         TEXT NOT NULL,
	started_at           TIMESTAMPTZ NOT NULL,
	ended_at             TIMESTAMPTZ NOT NULL,
	duration_seconds     DOUBLE PRECISION NOT NULL,
	medication_given     BOOLEAN NOT NULL,
	breathing_normal     BOOLEAN NOT NULL,
	injuries_present     BOOLEAN NOT NULL,
	escalated            BOOLEAN NOT NULL,
	notified_contact_ids TEXT[] NOT NULL DEFAULT '{}',
	observation          JSONB NOT NULL,
	reported_at          TIMESTAMPTZ NOT NULL
)`

const postgresUpsert = `
INSERT INTO seizure_episodes (
	episode_id, patient_id, trigger_kind, started_at, ended_at, duration_seconds,
	medication_given, breathing_normal, injuries_present, escalated,
	notified_contact_ids, observation, reported_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (episode_id) DO UPDATE SET
	medication_given = EXCLUDED.medication_given,
	breathing_normal = EXCLUDED.breathing_normal,
	injuries_present = EXCLUDED.injuries_present,
	notified_contact_ids = EXCLUDED.notified_contact_ids,
	observation = EXCLUDED.observation,
	reported_at = EXCLUDED.reported_at`

// PostgresStore is the durable clinical history shared with the care team.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgres connects with lib/pq and creates the table.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgresStore(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the episodes table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save upserts the summary. A resubmitted report replaces the checklist.
func (s *PostgresStore) Save(ctx context.Context, summary models.EpisodeSummary) error {
	observation, err := json.Marshal(summary.Observation())
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, postgresUpsert,
		summary.EpisodeID,
		summary.PatientID,
		string(summary.Trigger),
		summary.StartedAt.UTC(),
		summary.EndedAt.UTC(),
		summary.DurationSeconds(),
		summary.Checklist.MedicationGiven,
		summary.Checklist.BreathingNormal,
		summary.Checklist.InjuriesPresent,
		summary.Escalated,
		pq.Array(summary.NotifiedContactIDs()),
		string(observation),
		summary.ReportedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert episode %s: %w", summary.EpisodeID, err)
	}
	s.logger.Debug("episode stored in postgres", zap.String("episode_id", summary.EpisodeID))
	return nil
}

// CountForPatient returns how many episodes a patient has on record.
func (s *PostgresStore) CountForPatient(ctx context.Context, patientID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seizure_episodes WHERE patient_id = $1`, patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}
