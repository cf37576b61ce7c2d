package handler_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/extractd/internal/api/handler"
	"github.com/docpipe/extractd/internal/api/router"
	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/objectstore"
	"github.com/docpipe/extractd/internal/orchestrator"
)

type fakeService struct {
	submitResult *orchestrator.SubmitResult
	submitErr    error
	status       job.Status
	statusRecord *job.StatusRecord
	statusErr    error
	fetchResult  *orchestrator.JobResult
	fetchErr     error

	lastSubmission orchestrator.Submission
}

func (s *fakeService) Submit(ctx context.Context, sub orchestrator.Submission) (*orchestrator.SubmitResult, error) {
	s.lastSubmission = sub
	return s.submitResult, s.submitErr
}

func (s *fakeService) PeekStatus(ctx context.Context, jobID string) (job.Status, *job.StatusRecord, error) {
	return s.status, s.statusRecord, s.statusErr
}

func (s *fakeService) FetchResult(ctx context.Context, jobID string) (*orchestrator.JobResult, error) {
	return s.fetchResult, s.fetchErr
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

func newTestRouter(t *testing.T, service *fakeService, publisher *fakePublisher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	objects, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	return router.SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.DiscardHandler),
		Service:   service,
		Objects:   objects,
		Publisher: publisher,
		HealthChecks: map[string]func(ctx context.Context) error{
			"postgresql": func(ctx context.Context) error { return nil },
			"redis":      func(ctx context.Context) error { return nil },
		},
	})
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestSubmitDocument_Accepted(t *testing.T) {
	service := &fakeService{
		submitResult: &orchestrator.SubmitResult{JobID: "job-1", Status: job.StatusQueued},
	}
	r := newTestRouter(t, service, &fakePublisher{})

	body, contentType := multipartUpload(t, "report.pdf", []byte("%PDF-1.7 content"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
	assert.Contains(t, w.Body.String(), `"status":"queued"`)
	assert.Equal(t, "report.pdf", service.lastSubmission.Filename)
}

func TestSubmitDocument_MissingFile(t *testing.T) {
	r := newTestRouter(t, &fakeService{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitDocument_RejectsFakePDF(t *testing.T) {
	r := newTestRouter(t, &fakeService{}, &fakePublisher{})

	body, contentType := multipartUpload(t, "fake.pdf", []byte("just plain text"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "valid PDF")
}

func TestSubmitDocument_EmptyDocument(t *testing.T) {
	service := &fakeService{submitErr: job.ErrEmptyDocument}
	r := newTestRouter(t, service, &fakePublisher{})

	body, contentType := multipartUpload(t, "empty.txt", []byte{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty")
}

func TestEnqueueDocument_Published(t *testing.T) {
	publisher := &fakePublisher{}
	r := newTestRouter(t, &fakeService{}, publisher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/enqueue",
		strings.NewReader(`{"object_key":"uploads/doc.pdf","job_id":"job-9"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, publisher.published, 1)
	assert.Contains(t, string(publisher.published[0]), "uploads/doc.pdf")
	assert.Contains(t, w.Body.String(), `"job_id":"job-9"`)
}

func TestEnqueueDocument_MissingObjectKey(t *testing.T) {
	r := newTestRouter(t, &fakeService{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/enqueue",
		strings.NewReader(`{"job_id":"job-9"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueDocument_BrokerDown(t *testing.T) {
	r := newTestRouter(t, &fakeService{}, &fakePublisher{err: errors.New("connection closed")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/enqueue",
		strings.NewReader(`{"object_key":"uploads/doc.pdf"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetStatus_Found(t *testing.T) {
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := &fakeService{
		status: job.StatusCompleted,
		statusRecord: &job.StatusRecord{
			JobID:         "job-1",
			Status:        job.StatusCompleted,
			Filename:      "report.pdf",
			SubmittedAt:   completedAt.Add(-time.Minute),
			CompletedAt:   &completedAt,
			ResultPreview: "extracted text",
		},
	}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/job-1/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
	assert.Contains(t, w.Body.String(), "extracted text")
}

func TestGetStatus_Unknown(t *testing.T) {
	service := &fakeService{status: job.StatusUnknown}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStatus_StoreUnavailable(t *testing.T) {
	service := &fakeService{statusErr: errors.New("dial tcp: connection refused")}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/job-1/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetResult_Completed(t *testing.T) {
	service := &fakeService{
		fetchResult: &orchestrator.JobResult{
			JobID:          "job-1",
			Status:         job.StatusCompleted,
			ResultText:     "full extracted text",
			WordCount:      3,
			CharacterCount: 19,
		},
	}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/job-1/result", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "full extracted text")
	assert.Contains(t, w.Body.String(), `"word_count":3`)
}

func TestGetResult_InconsistentState(t *testing.T) {
	service := &fakeService{fetchErr: job.ErrInconsistentState}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/job-1/result", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "completed status")
}

func TestGetResult_Unknown(t *testing.T) {
	service := &fakeService{
		fetchResult: &orchestrator.JobResult{JobID: "missing", Status: job.StatusUnknown},
	}
	r := newTestRouter(t, service, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing/result", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth_AllHealthy(t *testing.T) {
	r := newTestRouter(t, &fakeService{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestHealth_DependencyDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	objects, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	r := router.SetupRouter(&handler.Dependencies{
		Logger:    slog.New(slog.DiscardHandler),
		Service:   &fakeService{},
		Objects:   objects,
		Publisher: &fakePublisher{},
		HealthChecks: map[string]func(ctx context.Context) error{
			"postgresql": func(ctx context.Context) error { return nil },
			"redis":      func(ctx context.Context) error { return errors.New("down") },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
	assert.Contains(t, w.Body.String(), `"postgresql":"healthy"`)
}
