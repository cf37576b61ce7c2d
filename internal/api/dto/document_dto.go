package dto

type SubmitDocumentResponse struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

type EnqueueDocumentRequest struct {
	ObjectKey string `json:"object_key" binding:"required"`
	JobID     string `json:"job_id"`
}

type EnqueueDocumentResponse struct {
	JobID     string `json:"job_id"`
	ObjectKey string `json:"object_key"`
	Status    string `json:"status"`
}

type StatusResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Filename      string `json:"filename,omitempty"`
	SubmittedAt   string `json:"submitted_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	ResultPreview string `json:"result_preview,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ResultResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Filename       string `json:"filename,omitempty"`
	ResultText     string `json:"result_text,omitempty"`
	WordCount      int    `json:"word_count"`
	CharacterCount int    `json:"character_count"`
	CompletedAt    string `json:"completed_at,omitempty"`
	Error          string `json:"error,omitempty"`
}
