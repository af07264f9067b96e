package model

import "time"

// Job represents one conversion request and its lifecycle state.
// The record is the only state shared between the assigned worker (writes)
// and pollers (reads); the store enforces the transition and progress rules.
type Job struct {
	ID         string     `json:"id"`
	SourceKind SourceKind `json:"sourceKind"`
	SourceRef  string     `json:"sourceRef"`
	Preset     string     `json:"preset"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Step       string     `json:"step,omitempty"`
	Attempt    int        `json:"attempt"`
	Result     *JobResult `json:"result,omitempty"`
	Failure    *Failure   `json:"failure,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// JobResult holds the addressable locations of the finished artifacts.
type JobResult struct {
	MP3URL string `json:"mp3Url"`
	WAVURL string `json:"wavUrl"`
}

// Snapshot is the externally visible job state returned by the status
// boundary. Exactly one of Result/Error is set once the status is terminal.
type Snapshot struct {
	ID       string     `json:"id"`
	Status   JobStatus  `json:"status"`
	Progress int        `json:"progress"`
	Step     string     `json:"step,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
	Error    *Failure   `json:"error,omitempty"`
}

// Snapshot returns the external view of the job.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:       j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Step:     j.Step,
		Result:   j.Result,
		Error:    j.Failure,
	}
}
