package job

import "time"

// Status is a job's position in the extraction lifecycle. A job moves
// queued -> processing -> completed/failed; completed and failed are terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusRecord is the cache-resident shape of a job. It is written as a whole
// on every transition (no read-modify-write) and expires after the status TTL.
type StatusRecord struct {
	JobID         string     `json:"job_id"`
	Fingerprint   string     `json:"fingerprint,omitempty"`
	Status        Status     `json:"status"`
	Filename      string     `json:"filename,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ResultPreview string     `json:"result_preview,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// ResultRecord is the durable shape of a completed job. It is written exactly
// once per completion, before the status cache flips to completed, and is
// never written for failed jobs.
type ResultRecord struct {
	JobID          string    `db:"job_id" json:"job_id"`
	ResultText     string    `db:"result_text" json:"result_text"`
	WordCount      int       `db:"word_count" json:"word_count"`
	CharacterCount int       `db:"character_count" json:"character_count"`
	Status         string    `db:"status" json:"status"`
	ProcessedAt    time.Time `db:"processed_at" json:"processed_at"`
}
