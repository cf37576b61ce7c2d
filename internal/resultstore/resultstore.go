package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/docpipe/extractd/internal/job"
)

// Store is the durable home of completed extraction results. Only the
// orchestrator's completion path writes here; the read path serves full
// result text that is too large for the status cache.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the completed result for a job. Calling it twice with the
// same job id overwrites the previous row, never duplicates it.
func (s *Store) Upsert(ctx context.Context, record *job.ResultRecord) error {
	query := `
		INSERT INTO extraction_results (
			job_id, result_text, word_count, character_count, status, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (job_id) DO UPDATE SET
			result_text     = EXCLUDED.result_text,
			word_count      = EXCLUDED.word_count,
			character_count = EXCLUDED.character_count,
			status          = EXCLUDED.status,
			processed_at    = EXCLUDED.processed_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		record.JobID,
		record.ResultText,
		record.WordCount,
		record.CharacterCount,
		record.Status,
		record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	s.logger.Info("Result record persisted",
		slog.String("job_id", record.JobID),
		slog.Int("word_count", record.WordCount),
		slog.Int("character_count", record.CharacterCount),
	)

	return nil
}

// Get returns the durable result for a job, or job.ErrNotFound when no row
// exists.
func (s *Store) Get(ctx context.Context, jobID string) (*job.ResultRecord, error) {
	query := `
		SELECT job_id, result_text, word_count, character_count, status, processed_at
		FROM extraction_results
		WHERE job_id = $1
	`

	var record job.ResultRecord
	if err := s.db.GetContext(ctx, &record, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return &record, nil
}
