package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/docpipe/extractd/internal/job"
)

// New derives the content identity of a document from its raw bytes.
// Identical content always yields the identical fingerprint, which makes the
// digest usable as the sole deduplication key. Empty input is rejected.
func New(data []byte) (string, error) {
	if len(data) == 0 {
		return "", job.ErrEmptyDocument
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
