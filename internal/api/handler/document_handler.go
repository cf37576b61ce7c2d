package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docpipe/extractd/internal/api/dto"
	"github.com/docpipe/extractd/internal/job"
	"github.com/docpipe/extractd/internal/orchestrator"
)

var pdfSignature = []byte("%PDF")

// SubmitDocument handles POST /api/v1/documents
// Accepts a multipart upload and queues it for extraction.
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	h.logger.Info("SubmitDocument called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("Missing file upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file field is required",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read uploaded file",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read uploaded file",
		})
		return
	}

	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") && !bytes.HasPrefix(data, pdfSignature) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file does not look like a valid PDF",
		})
		return
	}

	jobID := c.PostForm("document_id")
	if jobID == "" {
		jobID = uuid.New().String()
	}

	res, err := h.service.Submit(c.Request.Context(), orchestrator.Submission{
		JobID:    jobID,
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		if errors.Is(err, job.ErrEmptyDocument) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "document is empty",
			})
			return
		}
		h.logger.Error("Failed to submit document", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to submit document",
		})
		return
	}

	// Archive the original upload for reprocessing. Extraction already
	// holds its own copy, so failure here is logged and tolerated.
	archiveKey := fmt.Sprintf("uploads/%s_%s", res.JobID, filepath.Base(fileHeader.Filename))
	if _, err := h.objects.Write(c.Request.Context(), archiveKey, data); err != nil {
		h.logger.Warn("Failed to archive upload",
			slog.String("job_id", res.JobID),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusAccepted, dto.SubmitDocumentResponse{
		JobID:        res.JobID,
		Status:       string(res.Status),
		Deduplicated: res.Deduplicated,
	})
}

// EnqueueDocument handles POST /api/v1/documents/enqueue
// Publishes an already-stored document by object key for the worker service.
func (h *DocumentHandler) EnqueueDocument(c *gin.Context) {
	var req dto.EnqueueDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "object_key is required",
		})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	body, err := json.Marshal(gin.H{
		"job_id":     jobID,
		"object_key": req.ObjectKey,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to encode message",
		})
		return
	}

	if err := h.publisher.Publish(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to publish document",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to enqueue document",
		})
		return
	}

	h.logger.Info("Document enqueued",
		slog.String("job_id", jobID),
		slog.String("object_key", req.ObjectKey),
	)

	c.JSON(http.StatusAccepted, dto.EnqueueDocumentResponse{
		JobID:     jobID,
		ObjectKey: req.ObjectKey,
		Status:    string(job.StatusQueued),
	})
}

// GetStatus handles GET /api/v1/documents/:job_id/status
// Answers from the status cache only, keeping polls cheap.
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	status, record, err := h.service.PeekStatus(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to read status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "status store unavailable",
		})
		return
	}

	if status == job.StatusUnknown {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	resp := dto.StatusResponse{
		JobID:  jobID,
		Status: string(status),
	}
	if record != nil {
		resp.Filename = record.Filename
		resp.SubmittedAt = record.SubmittedAt.Format(time.RFC3339)
		resp.ResultPreview = record.ResultPreview
		resp.Error = record.ErrorMessage
		if record.CompletedAt != nil {
			resp.CompletedAt = record.CompletedAt.Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetResult handles GET /api/v1/documents/:job_id/result
// Serves completed results from durable storage.
func (h *DocumentHandler) GetResult(c *gin.Context) {
	jobID := c.Param("job_id")

	result, err := h.service.FetchResult(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrInconsistentState) {
			h.logger.Error("Job completed without durable result",
				slog.String("job_id", jobID),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "job result is unavailable despite completed status",
			})
			return
		}
		h.logger.Error("Failed to fetch result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "result store unavailable",
		})
		return
	}

	if result.Status == job.StatusUnknown {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	resp := dto.ResultResponse{
		JobID:          result.JobID,
		Status:         string(result.Status),
		Filename:       result.Filename,
		ResultText:     result.ResultText,
		WordCount:      result.WordCount,
		CharacterCount: result.CharacterCount,
		Error:          result.ErrorMessage,
	}
	if result.CompletedAt != nil {
		resp.CompletedAt = result.CompletedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
// Reports per-dependency health; any unhealthy dependency yields 503.
func (h *DocumentHandler) Health(c *gin.Context) {
	overall := "healthy"
	deps := gin.H{}

	for name, check := range h.healthChecks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = "unhealthy"
			overall = "unhealthy"
			h.logger.Warn("Dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
		} else {
			deps[name] = "healthy"
		}
	}

	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       overall,
		"service":      "extractd-api",
		"dependencies": deps,
	})
}
