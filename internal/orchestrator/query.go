package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docpipe/extractd/internal/job"
)

// JobResult is the full answer to a result query: terminal jobs carry
// either the extracted text or the failure message.
type JobResult struct {
	JobID          string
	Status         job.Status
	Filename       string
	ResultText     string
	WordCount      int
	CharacterCount int
	ErrorMessage   string
	CompletedAt    *time.Time
}

// PeekStatus answers status polls from the cache alone, never touching the
// durable store. A job the cache has no record of reports StatusUnknown.
func (o *Orchestrator) PeekStatus(ctx context.Context, jobID string) (job.Status, *job.StatusRecord, error) {
	record, err := o.statusStore.Get(ctx, jobID)
	if err != nil {
		if err == job.ErrNotFound {
			return job.StatusUnknown, nil, nil
		}
		return job.StatusUnknown, nil, fmt.Errorf("failed to read job status: %w", err)
	}

	return o.effectiveStatus(record), record, nil
}

// FetchResult returns the job's result. Completed jobs are served from the
// durable store; a completed status with no durable result is reported as
// job.ErrInconsistentState. Jobs absent from the cache fall through to the
// durable store so completed work outlives the cache TTL.
func (o *Orchestrator) FetchResult(ctx context.Context, jobID string) (*JobResult, error) {
	record, err := o.statusStore.Get(ctx, jobID)
	if err != nil {
		if err != job.ErrNotFound {
			return nil, fmt.Errorf("failed to read job status: %w", err)
		}
		return o.fetchDurable(ctx, jobID)
	}

	status := o.effectiveStatus(record)
	switch status {
	case job.StatusCompleted:
		result, err := o.resultStore.Get(ctx, jobID)
		if err != nil {
			if err == job.ErrNotFound {
				o.logger.Error("completed job has no durable result",
					slog.String("job_id", jobID),
				)
				return nil, job.ErrInconsistentState
			}
			return nil, fmt.Errorf("failed to read job result: %w", err)
		}
		return &JobResult{
			JobID:          jobID,
			Status:         job.StatusCompleted,
			Filename:       record.Filename,
			ResultText:     result.ResultText,
			WordCount:      result.WordCount,
			CharacterCount: result.CharacterCount,
			CompletedAt:    record.CompletedAt,
		}, nil

	case job.StatusFailed:
		return &JobResult{
			JobID:        jobID,
			Status:       job.StatusFailed,
			Filename:     record.Filename,
			ErrorMessage: failureMessage(record),
			CompletedAt:  record.CompletedAt,
		}, nil

	default:
		return &JobResult{
			JobID:    jobID,
			Status:   status,
			Filename: record.Filename,
		}, nil
	}
}

// fetchDurable serves jobs whose cache record expired but whose result
// survived in the durable store.
func (o *Orchestrator) fetchDurable(ctx context.Context, jobID string) (*JobResult, error) {
	result, err := o.resultStore.Get(ctx, jobID)
	if err != nil {
		if err == job.ErrNotFound {
			return &JobResult{JobID: jobID, Status: job.StatusUnknown}, nil
		}
		return nil, fmt.Errorf("failed to read job result: %w", err)
	}

	return &JobResult{
		JobID:          jobID,
		Status:         job.StatusCompleted,
		ResultText:     result.ResultText,
		WordCount:      result.WordCount,
		CharacterCount: result.CharacterCount,
		CompletedAt:    &result.ProcessedAt,
	}, nil
}

// effectiveStatus reinterprets a processing record that has outlived the
// stale threshold as failed. The cached record itself is left untouched.
func (o *Orchestrator) effectiveStatus(record *job.StatusRecord) job.Status {
	if o.staleAfter <= 0 || record.Status != job.StatusProcessing || record.StartedAt == nil {
		return record.Status
	}
	if time.Since(*record.StartedAt) > o.staleAfter {
		return job.StatusFailed
	}
	return record.Status
}

func failureMessage(record *job.StatusRecord) string {
	if record.ErrorMessage != "" {
		return record.ErrorMessage
	}
	// A processing record past the stale threshold has no recorded error.
	return "processing exceeded the allowed duration"
}
