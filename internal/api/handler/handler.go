package handler

import (
	"context"
	"log/slog"

	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/objectstore"
	"github.com/docpipe/extractd/internal/orchestrator"
)

// ExtractionService is the orchestration surface the HTTP layer drives.
type ExtractionService interface {
	Submit(ctx context.Context, sub orchestrator.Submission) (*orchestrator.SubmitResult, error)
	PeekStatus(ctx context.Context, jobID string) (job.Status, *job.StatusRecord, error)
	FetchResult(ctx context.Context, jobID string) (*orchestrator.JobResult, error)
}

// Publisher enqueues documents by reference for the worker service.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Service   ExtractionService
	Objects   objectstore.Store
	Publisher Publisher

	// HealthChecks maps dependency names to their liveness probes.
	HealthChecks map[string]func(ctx context.Context) error
}

// DocumentHandler handles document extraction HTTP requests
type DocumentHandler struct {
	logger       *slog.Logger
	service      ExtractionService
	objects      objectstore.Store
	publisher    Publisher
	healthChecks map[string]func(ctx context.Context) error
}

// NewDocumentHandler creates a new DocumentHandler instance
func NewDocumentHandler(deps *Dependencies) *DocumentHandler {
	return &DocumentHandler{
		logger:       deps.Logger,
		service:      deps.Service,
		objects:      deps.Objects,
		publisher:    deps.Publisher,
		healthChecks: deps.HealthChecks,
	}
}
