package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/docpipe/extractd/internal/job"
)

// Key prefixes in the status cache. The doc key holds the serialized
// StatusRecord; the hash key maps a content fingerprint to the job that first
// carried it. Both expire together after the status TTL.
const (
	statusKeyPrefix      = "doc:"
	fingerprintKeyPrefix = "hash:"
)

// Store is the fast status cache. Every write replaces the whole record and
// resets its TTL; there is no read-modify-write.
type Store struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a Store on top of an established Redis client.
func NewStore(rdb *goredis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Put overwrites the job's status record and resets its TTL. When the record
// carries a fingerprint, the fingerprint index entry is written in the same
// transaction with the same TTL.
func (s *Store) Put(ctx context.Context, record *job.StatusRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, statusKeyPrefix+record.JobID, payload, s.ttl)
	if record.Fingerprint != "" {
		pipe.Set(ctx, fingerprintKeyPrefix+record.Fingerprint, record.JobID, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write status record: %w", err)
	}

	s.logger.Debug("Status record written",
		slog.String("job_id", record.JobID),
		slog.String("status", string(record.Status)),
	)

	return nil
}

// Get returns the job's status record, or job.ErrNotFound when the record is
// absent or has expired.
func (s *Store) Get(ctx context.Context, jobID string) (*job.StatusRecord, error) {
	payload, err := s.rdb.Get(ctx, statusKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read status record: %w", err)
	}

	var record job.StatusRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status record: %w", err)
	}

	return &record, nil
}

// Exists reports whether the job has a live status record. It is an O(1)
// existence check used to short-circuit duplicate submissions without
// deserializing the record.
func (s *Store) Exists(ctx context.Context, jobID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check status record existence: %w", err)
	}

	return n > 0, nil
}

// LookupFingerprint returns the job id currently indexed under the given
// content fingerprint, or job.ErrNotFound when no live mapping exists. The
// mapping is an advisory dedup hint, not a uniqueness constraint: entries
// expire with the TTL and a miss is not proof of non-existence.
func (s *Store) LookupFingerprint(ctx context.Context, fp string) (string, error) {
	jobID, err := s.rdb.Get(ctx, fingerprintKeyPrefix+fp).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", job.ErrNotFound
		}
		return "", fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	return jobID, nil
}
