package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/docpipe/extractd/internal/analysis"
	"github.com/docpipe/extractd/internal/fingerprint"
	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/workerpool"
)

const defaultPreviewLength = 500

// StatusStore is the fast status cache the orchestrator records job
// lifecycle transitions in.
type StatusStore interface {
	Put(ctx context.Context, record *job.StatusRecord) error
	Get(ctx context.Context, jobID string) (*job.StatusRecord, error)
	LookupFingerprint(ctx context.Context, fp string) (string, error)
}

// ResultStore is the durable home of full extraction results.
type ResultStore interface {
	Upsert(ctx context.Context, record *job.ResultRecord) error
	Get(ctx context.Context, jobID string) (*job.ResultRecord, error)
}

// Pool runs analysis tasks on a bounded set of workers.
type Pool interface {
	Submit(ctx context.Context, task workerpool.Task) (<-chan workerpool.Outcome, error)
}

// Config holds orchestrator dependencies and tuning knobs.
type Config struct {
	Logger      *slog.Logger
	StatusStore StatusStore
	ResultStore ResultStore
	Pool        Pool
	Engine      analysis.Engine

	// PreviewLength bounds the result excerpt stored in the status cache.
	PreviewLength int
	// ContentDedup enables returning an existing job for resubmitted content.
	ContentDedup bool
	// StaleAfter marks processing jobs older than this as failed on reads.
	StaleAfter time.Duration
}

// Orchestrator drives jobs through the extraction lifecycle: it accepts
// submissions, records status transitions in the cache, hands documents to
// the worker pool, and persists completed results durably before the
// completed status becomes visible.
type Orchestrator struct {
	logger        *slog.Logger
	statusStore   StatusStore
	resultStore   ResultStore
	pool          Pool
	engine        analysis.Engine
	previewLength int
	contentDedup  bool
	staleAfter    time.Duration

	wg sync.WaitGroup
}

// New creates an orchestrator from config, applying defaults.
func New(config Config) *Orchestrator {
	previewLength := config.PreviewLength
	if previewLength <= 0 {
		previewLength = defaultPreviewLength
	}

	return &Orchestrator{
		logger:        config.Logger,
		statusStore:   config.StatusStore,
		resultStore:   config.ResultStore,
		pool:          config.Pool,
		engine:        config.Engine,
		previewLength: previewLength,
		contentDedup:  config.ContentDedup,
		staleAfter:    config.StaleAfter,
	}
}

// Submission is a request to extract text from one document.
type Submission struct {
	JobID    string
	Filename string
	Data     []byte
}

// SubmitResult reports how a submission was accepted. Deduplicated is set
// when the returned job is an existing one rather than newly queued.
type SubmitResult struct {
	JobID  string
	Status job.Status
	// Deduplicated reports the submission was answered by an existing job.
	Deduplicated bool
}

// Submit registers a document for extraction and schedules it on the worker
// pool. Resubmitting a known job ID returns its current state without
// re-processing. Empty documents are rejected with job.ErrEmptyDocument.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	fp, err := fingerprint.New(sub.Data)
	if err != nil {
		return nil, err
	}

	existing, err := o.statusStore.Get(ctx, sub.JobID)
	if err == nil {
		o.logger.Info("job already registered, skipping re-submission",
			slog.String("job_id", sub.JobID),
			slog.String("status", string(existing.Status)),
		)
		return &SubmitResult{JobID: sub.JobID, Status: existing.Status, Deduplicated: true}, nil
	}
	if err != job.ErrNotFound {
		return nil, fmt.Errorf("failed to check job registration: %w", err)
	}

	if o.contentDedup {
		if canonicalID, err := o.statusStore.LookupFingerprint(ctx, fp); err == nil {
			if rec, err := o.statusStore.Get(ctx, canonicalID); err == nil {
				o.logger.Info("content already submitted, returning existing job",
					slog.String("job_id", canonicalID),
					slog.String("fingerprint", fp),
				)
				return &SubmitResult{JobID: canonicalID, Status: rec.Status, Deduplicated: true}, nil
			}
			// Stale fingerprint hint, fall through and queue a fresh job.
		}
	}

	record := &job.StatusRecord{
		JobID:       sub.JobID,
		Fingerprint: fp,
		Status:      job.StatusQueued,
		Filename:    sub.Filename,
		SubmittedAt: time.Now().UTC(),
	}
	if err := o.statusStore.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	o.logger.Info("job queued",
		slog.String("job_id", sub.JobID),
		slog.String("filename", sub.Filename),
		slog.Int("size_bytes", len(sub.Data)),
	)

	o.wg.Add(1)
	go o.process(record, sub.Data)

	return &SubmitResult{JobID: sub.JobID, Status: job.StatusQueued}, nil
}

// process runs the job lifecycle off the submitter's request context so an
// early client disconnect cannot abort an accepted job.
func (o *Orchestrator) process(record *job.StatusRecord, data []byte) {
	defer o.wg.Done()

	ctx := context.Background()

	startedAt := time.Now().UTC()
	record.Status = job.StatusProcessing
	record.StartedAt = &startedAt
	if err := o.statusStore.Put(ctx, record); err != nil {
		o.logger.Error("failed to record processing status",
			slog.String("job_id", record.JobID),
			slog.String("error", err.Error()),
		)
		o.failJob(ctx, record, fmt.Sprintf("failed to record processing status: %v", err))
		return
	}

	results, err := o.pool.Submit(ctx, func(taskCtx context.Context) (string, error) {
		content, err := o.engine.Analyze(taskCtx, data)
		if err != nil {
			return "", err
		}
		return content.Text, nil
	})
	if err != nil {
		o.failJob(ctx, record, fmt.Sprintf("failed to schedule analysis: %v", err))
		return
	}

	outcome := <-results
	if outcome.Err != nil {
		o.failJob(ctx, record, outcome.Err.Error())
		return
	}

	o.completeJob(ctx, record, outcome.Text)
}

// completeJob persists the full result durably, then flips the cached
// status to completed. The ordering guarantees a completed status is never
// visible without its durable result.
func (o *Orchestrator) completeJob(ctx context.Context, record *job.StatusRecord, text string) {
	processedAt := time.Now().UTC()

	result := &job.ResultRecord{
		JobID:          record.JobID,
		ResultText:     text,
		WordCount:      len(strings.Fields(text)),
		CharacterCount: utf8.RuneCountInString(text),
		Status:         string(job.StatusCompleted),
		ProcessedAt:    processedAt,
	}
	if err := o.resultStore.Upsert(ctx, result); err != nil {
		o.failJob(ctx, record, fmt.Sprintf("failed to persist result: %v", err))
		return
	}

	record.Status = job.StatusCompleted
	record.CompletedAt = &processedAt
	record.ResultPreview = preview(text, o.previewLength)
	if err := o.statusStore.Put(ctx, record); err != nil {
		// The durable result exists, so the job is recoverable even though
		// the cache still shows processing.
		o.logger.Error("failed to record completed status",
			slog.String("job_id", record.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	o.logger.Info("job completed",
		slog.String("job_id", record.JobID),
		slog.Int("word_count", result.WordCount),
		slog.Int("character_count", result.CharacterCount),
	)
}

// failJob records a terminal failure with the analysis error preserved
// verbatim for the caller to inspect.
func (o *Orchestrator) failJob(ctx context.Context, record *job.StatusRecord, message string) {
	completedAt := time.Now().UTC()

	record.Status = job.StatusFailed
	record.CompletedAt = &completedAt
	record.ErrorMessage = message
	if err := o.statusStore.Put(ctx, record); err != nil {
		o.logger.Error("failed to record failed status",
			slog.String("job_id", record.JobID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Warn("job failed",
		slog.String("job_id", record.JobID),
		slog.String("error", message),
	)
}

// Drain blocks until all in-flight jobs have reached a terminal state.
// Call during shutdown after the intake surface has stopped accepting work.
func (o *Orchestrator) Drain() {
	o.wg.Wait()
}

// preview truncates text to at most limit runes, marking the cut.
func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
