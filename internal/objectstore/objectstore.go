package objectstore

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when no artifact exists under the given key.
var ErrObjectNotFound = errors.New("object not found")

// Store holds input and output artifacts (source documents, images). Write
// returns the stored artifact's location.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
}
