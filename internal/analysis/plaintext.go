package analysis

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	headingPattern    = regexp.MustCompile(`(?m)^#+ `)
	formattingPattern = regexp.MustCompile(`\*\*|\*|__|\||---|___`)
)

// PlainText is a local engine for text documents: it treats the input as
// UTF-8 and strips markdown formatting. Useful for development and as a
// fallback when no remote analysis service is deployed.
type PlainText struct{}

// NewPlainText creates a plain-text engine.
func NewPlainText() *PlainText {
	return &PlainText{}
}

func (e *PlainText) Analyze(ctx context.Context, document []byte) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !utf8.Valid(document) {
		return nil, errors.New("document is not valid UTF-8 text")
	}

	text := headingPattern.ReplaceAllString(string(document), "")
	text = formattingPattern.ReplaceAllString(text, "")

	return &Content{Text: strings.TrimSpace(text)}, nil
}
