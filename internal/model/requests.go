package model

import "time"

// CreateJobRequest is the JSON body for POST /api/jobs with a remote source.
// Uploads arrive as multipart form data instead (see handler.JobHandler).
type CreateJobRequest struct {
	SourceType string `json:"sourceType" validate:"required,oneof=youtube"`
	SourceURL  string `json:"sourceUrl" validate:"required,url"`
	Preset     string `json:"preset,omitempty"`
}

// CreateJobResponse acknowledges an accepted submission.
type CreateJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
