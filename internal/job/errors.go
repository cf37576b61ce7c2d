package job

import "errors"

var (
	// ErrEmptyDocument is returned when a submission carries no bytes.
	// It is reported synchronously, before any job state is created.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrNotFound is returned when a job has no record in the store consulted.
	ErrNotFound = errors.New("job not found")

	// ErrInconsistentState is returned when the status cache reports completed
	// but the durable store has no result record.
	ErrInconsistentState = errors.New("job is marked completed but its durable result is missing")
)
