package analysis

import "context"

// Content is the structured output of the analysis step for one document.
type Content struct {
	Text string
}

// Engine runs the slow, CPU-bound document analysis step. Implementations
// are opaque to the orchestrator: they either return extracted content or an
// error, and may take seconds to minutes per document.
type Engine interface {
	Analyze(ctx context.Context, document []byte) (*Content, error)
}
