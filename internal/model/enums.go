package model

// Source kinds
type SourceKind string

const (
	SourceUpload  SourceKind = "upload"
	SourceYouTube SourceKind = "youtube"
)

var ValidSourceKinds = []SourceKind{
	SourceUpload, SourceYouTube,
}

// IsValidSourceKind reports whether the kind belongs to the enumerated set.
func IsValidSourceKind(kind string) bool {
	for _, k := range ValidSourceKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

// Job status. Transitions are forward-only:
// pending -> processing -> (completed | failed)
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// rank orders statuses for the forward-only guard.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition. Terminal states are sticky.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Output formats
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

var ValidFormats = []Format{FormatMP3, FormatWAV}

// IsValidFormat reports whether the format is mp3 or wav.
func IsValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if string(f) == format {
			return true
		}
	}
	return false
}
