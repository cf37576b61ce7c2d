package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Remote calls a sidecar analysis service over HTTP. The document bytes are
// posted as-is; the service answers with the extracted text.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemote creates a client for the analysis service at baseURL.
func NewRemote(baseURL string, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (r *Remote) Analyze(ctx context.Context, document []byte) (*Content, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		r.baseURL+"/analyze",
		bytes.NewReader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The engine's message is preserved verbatim for diagnostics.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analysis engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	r.logger.Debug("Analysis request completed",
		slog.Int("document_size", len(document)),
		slog.Duration("latency", time.Since(start)),
	)

	return &Content{Text: payload.Text}, nil
}
