package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/extractd/internal/analysis"
	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/workerpool"
)

type fakeStatusStore struct {
	mu           sync.Mutex
	records      map[string]job.StatusRecord
	fingerprints map[string]string
	events       *eventLog
	putErr       error
}

func newFakeStatusStore(events *eventLog) *fakeStatusStore {
	return &fakeStatusStore{
		records:      make(map[string]job.StatusRecord),
		fingerprints: make(map[string]string),
		events:       events,
	}
}

func (s *fakeStatusStore) Put(ctx context.Context, record *job.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.records[record.JobID] = *record
	s.fingerprints[record.Fingerprint] = record.JobID
	if s.events != nil {
		s.events.add("status:" + string(record.Status))
	}
	return nil
}

func (s *fakeStatusStore) Get(ctx context.Context, jobID string) (*job.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

func (s *fakeStatusStore) Exists(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[jobID]
	return ok, nil
}

func (s *fakeStatusStore) LookupFingerprint(ctx context.Context, fp string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.fingerprints[fp]
	if !ok {
		return "", job.ErrNotFound
	}
	return id, nil
}

func (s *fakeStatusStore) drop(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
}

type fakeResultStore struct {
	mu        sync.Mutex
	records   map[string]job.ResultRecord
	events    *eventLog
	upsertErr error
}

func newFakeResultStore(events *eventLog) *fakeResultStore {
	return &fakeResultStore{
		records: make(map[string]job.ResultRecord),
		events:  events,
	}
}

func (s *fakeResultStore) Upsert(ctx context.Context, record *job.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.records[record.JobID] = *record
	if s.events != nil {
		s.events.add("durable:upsert")
	}
	return nil
}

func (s *fakeResultStore) Get(ctx context.Context, jobID string) (*job.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

// eventLog records store writes across fakes so tests can assert ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type stubEngine struct {
	mu      sync.Mutex
	calls   int
	text    string
	err     error
	release chan struct{}
}

func (e *stubEngine) Analyze(ctx context.Context, document []byte) (*analysis.Content, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return nil, e.err
	}
	return &analysis.Content{Text: e.text}, nil
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type harness struct {
	orchestrator *Orchestrator
	statusStore  *fakeStatusStore
	resultStore  *fakeResultStore
	engine       *stubEngine
	pool         *workerpool.Pool
	events       *eventLog
}

func newHarness(t *testing.T, engine *stubEngine, tweak func(*Config)) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	events := &eventLog{}
	statusStore := newFakeStatusStore(events)
	resultStore := newFakeResultStore(events)

	pool := workerpool.New(&workerpool.Config{Logger: logger, Capacity: 2})
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	config := Config{
		Logger:      logger,
		StatusStore: statusStore,
		ResultStore: resultStore,
		Pool:        pool,
		Engine:      engine,
	}
	if tweak != nil {
		tweak(&config)
	}

	return &harness{
		orchestrator: New(config),
		statusStore:  statusStore,
		resultStore:  resultStore,
		engine:       engine,
		pool:         pool,
		events:       events,
	}
}

func TestSubmit_CompletesJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "extracted body text"}, nil)
	ctx := context.Background()

	res, err := h.orchestrator.Submit(ctx, Submission{
		JobID:    "job-1",
		Filename: "report.pdf",
		Data:     []byte("%PDF-1.7 raw bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, job.StatusQueued, res.Status)
	assert.False(t, res.Deduplicated)

	h.orchestrator.Drain()

	status, record, err := h.orchestrator.PeekStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, status)
	assert.Equal(t, "extracted body text", record.ResultPreview)
	assert.NotNil(t, record.CompletedAt)

	result, err := h.orchestrator.FetchResult(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "extracted body text", result.ResultText)
	assert.Equal(t, 3, result.WordCount)
	assert.Equal(t, 19, result.CharacterCount)
}

func TestSubmit_RejectsEmptyDocument(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "unused"}, nil)

	_, err := h.orchestrator.Submit(context.Background(), Submission{
		JobID:    "job-empty",
		Filename: "empty.pdf",
		Data:     nil,
	})
	assert.ErrorIs(t, err, job.ErrEmptyDocument)

	exists, err := h.statusStore.Exists(context.Background(), "job-empty")
	require.NoError(t, err)
	assert.False(t, exists, "rejected submission must leave no record")
}

func TestSubmit_IdempotentForKnownJobID(t *testing.T) {
	engine := &stubEngine{text: "text", release: make(chan struct{})}
	h := newHarness(t, engine, nil)
	ctx := context.Background()

	first, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-dup", Filename: "a.pdf", Data: []byte("content"),
	})
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)

	second, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-dup", Filename: "a.pdf", Data: []byte("content"),
	})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, "job-dup", second.JobID)

	close(engine.release)
	h.orchestrator.Drain()

	assert.Equal(t, 1, engine.callCount(), "duplicate submission must not re-run analysis")
}

func TestSubmit_TerminalJobIsNotReprocessed(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "original text"}, nil)
	ctx := context.Background()

	_, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-done", Filename: "a.pdf", Data: []byte("v1"),
	})
	require.NoError(t, err)
	h.orchestrator.Drain()

	// Re-submitting a completed job, even with different bytes, must not
	// touch its stored result.
	res, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-done", Filename: "a.pdf", Data: []byte("v2 different"),
	})
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Equal(t, job.StatusCompleted, res.Status)
	h.orchestrator.Drain()

	result, err := h.resultStore.Get(ctx, "job-done")
	require.NoError(t, err)
	assert.Equal(t, "original text", result.ResultText)
	assert.Equal(t, 1, h.engine.callCount())
}

func TestSubmit_ContentDedupReturnsCanonicalJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, func(c *Config) {
		c.ContentDedup = true
	})
	ctx := context.Background()
	data := []byte("same document bytes")

	first, err := h.orchestrator.Submit(ctx, Submission{JobID: "job-a", Filename: "a.pdf", Data: data})
	require.NoError(t, err)
	h.orchestrator.Drain()

	second, err := h.orchestrator.Submit(ctx, Submission{JobID: "job-b", Filename: "b.pdf", Data: data})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.JobID, second.JobID)

	assert.Equal(t, 1, h.engine.callCount())
}

func TestSubmit_ContentDedupDisabledQueuesFreshJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)
	ctx := context.Background()
	data := []byte("same document bytes")

	_, err := h.orchestrator.Submit(ctx, Submission{JobID: "job-a", Filename: "a.pdf", Data: data})
	require.NoError(t, err)
	h.orchestrator.Drain()

	second, err := h.orchestrator.Submit(ctx, Submission{JobID: "job-b", Filename: "b.pdf", Data: data})
	require.NoError(t, err)
	assert.False(t, second.Deduplicated)
	assert.Equal(t, "job-b", second.JobID)
	h.orchestrator.Drain()

	assert.Equal(t, 2, h.engine.callCount())
}

func TestSubmit_AnalysisFailurePreservesError(t *testing.T) {
	h := newHarness(t, &stubEngine{err: errors.New("unsupported encoding: latin-5")}, nil)
	ctx := context.Background()

	_, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-fail", Filename: "bad.pdf", Data: []byte("data"),
	})
	require.NoError(t, err)
	h.orchestrator.Drain()

	status, record, err := h.orchestrator.PeekStatus(ctx, "job-fail")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status)
	assert.Equal(t, "unsupported encoding: latin-5", record.ErrorMessage)

	result, err := h.orchestrator.FetchResult(ctx, "job-fail")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, result.Status)
	assert.Equal(t, "unsupported encoding: latin-5", result.ErrorMessage)

	_, err = h.resultStore.Get(ctx, "job-fail")
	assert.ErrorIs(t, err, job.ErrNotFound, "failed jobs must not write durable results")
}

func TestCompleteJob_DurableWritePrecedesCompletedStatus(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)

	_, err := h.orchestrator.Submit(context.Background(), Submission{
		JobID: "job-order", Filename: "a.pdf", Data: []byte("data"),
	})
	require.NoError(t, err)
	h.orchestrator.Drain()

	events := h.events.snapshot()
	durableAt, completedAt := -1, -1
	for i, ev := range events {
		switch ev {
		case "durable:upsert":
			durableAt = i
		case "status:completed":
			completedAt = i
		}
	}
	require.GreaterOrEqual(t, durableAt, 0)
	require.GreaterOrEqual(t, completedAt, 0)
	assert.Less(t, durableAt, completedAt, "durable result must be written before completed status")
}

func TestCompleteJob_DurableWriteFailureFailsJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)
	h.resultStore.upsertErr = errors.New("connection refused")

	_, err := h.orchestrator.Submit(context.Background(), Submission{
		JobID: "job-durable-err", Filename: "a.pdf", Data: []byte("data"),
	})
	require.NoError(t, err)
	h.orchestrator.Drain()

	status, record, err := h.orchestrator.PeekStatus(context.Background(), "job-durable-err")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status)
	assert.Contains(t, record.ErrorMessage, "failed to persist result")
}

func TestPeekStatus_UnknownJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)

	status, record, err := h.orchestrator.PeekStatus(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, job.StatusUnknown, status)
	assert.Nil(t, record)
}

func TestPeekStatus_StaleProcessingReadsAsFailed(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, func(c *Config) {
		c.StaleAfter = time.Minute
	})
	ctx := context.Background()

	startedAt := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, h.statusStore.Put(ctx, &job.StatusRecord{
		JobID:       "job-stale",
		Status:      job.StatusProcessing,
		SubmittedAt: startedAt,
		StartedAt:   &startedAt,
	}))

	status, _, err := h.orchestrator.PeekStatus(ctx, "job-stale")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, status)

	result, err := h.orchestrator.FetchResult(ctx, "job-stale")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, result.Status)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestFetchResult_InconsistentState(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)
	ctx := context.Background()

	// Completed status with no durable result behind it.
	require.NoError(t, h.statusStore.Put(ctx, &job.StatusRecord{
		JobID:       "job-torn",
		Status:      job.StatusCompleted,
		SubmittedAt: time.Now().UTC(),
	}))

	_, err := h.orchestrator.FetchResult(ctx, "job-torn")
	assert.ErrorIs(t, err, job.ErrInconsistentState)
}

func TestFetchResult_FallsThroughToDurableStoreAfterCacheExpiry(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "long lived result"}, nil)
	ctx := context.Background()

	_, err := h.orchestrator.Submit(ctx, Submission{
		JobID: "job-expired", Filename: "a.pdf", Data: []byte("data"),
	})
	require.NoError(t, err)
	h.orchestrator.Drain()

	// Simulate TTL expiry of the cached status record.
	h.statusStore.drop("job-expired")

	result, err := h.orchestrator.FetchResult(ctx, "job-expired")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, result.Status)
	assert.Equal(t, "long lived result", result.ResultText)
}

func TestFetchResult_UnknownJob(t *testing.T) {
	h := newHarness(t, &stubEngine{text: "text"}, nil)

	result, err := h.orchestrator.FetchResult(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, job.StatusUnknown, result.Status)
}

func TestPreview_TruncatesLongText(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "0123456789...", preview("0123456789abcdef", 10))
	assert.Equal(t, "héllo wôrl...", preview("héllo wôrld and more", 10))
}
