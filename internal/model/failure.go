package model

// FailureCode is the closed taxonomy of job failure categories. Codes are
// produced at the point of failure; raw internal errors are logged but never
// stored on the job record.
type FailureCode string

const (
	FailInvalidArgument   FailureCode = "INVALID_ARGUMENT"
	FailSourceUnavailable FailureCode = "SOURCE_UNAVAILABLE"
	FailSourcePrivate     FailureCode = "SOURCE_PRIVATE"
	FailSourceRestricted  FailureCode = "SOURCE_RESTRICTED"
	FailSourceTooLong     FailureCode = "SOURCE_TOO_LONG"
	FailSourceTimeout     FailureCode = "SOURCE_TIMEOUT"
	FailStageFailure      FailureCode = "STAGE_FAILURE"
	FailStageTimeout      FailureCode = "STAGE_TIMEOUT"
	FailPublishFailure    FailureCode = "PUBLISH_FAILURE"
	FailInternal          FailureCode = "INTERNAL"
)

// userMessages maps each code to its user-safe text. Anything outside the
// taxonomy degrades to the FailInternal message.
var userMessages = map[FailureCode]string{
	FailInvalidArgument:   "Invalid request. Check the preset and source type",
	FailSourceUnavailable: "Could not access the source. It may be restricted or deleted",
	FailSourcePrivate:     "This video is private and cannot be processed",
	FailSourceRestricted:  "This video is restricted and cannot be processed",
	FailSourceTooLong:     "Source is too long. Please use audio under 10 minutes",
	FailSourceTimeout:     "Download timed out. Please try a shorter source",
	FailStageTimeout:      "Processing took too long and was stopped. Please try a shorter source",
	FailStageFailure:      "Audio processing failed. Please try again",
	FailPublishFailure:    "Could not store the processed audio. Please try again",
	FailInternal:          "Processing failed. Please try again",
}

// Failure is a job failure with a taxonomy code and user-safe message.
// It implements error so pipeline stages can return it directly.
type Failure struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`

	// cause is internal detail for logging only, never serialized.
	cause error
}

// NewFailure builds a Failure for code, attaching cause for logs.
func NewFailure(code FailureCode, cause error) *Failure {
	msg, ok := userMessages[code]
	if !ok {
		code = FailInternal
		msg = userMessages[FailInternal]
	}
	return &Failure{Code: code, Message: msg, cause: cause}
}

func (f *Failure) Error() string {
	return string(f.Code) + ": " + f.Message
}

// Unwrap exposes the internal cause to errors.Is/As and log formatting.
func (f *Failure) Unwrap() error {
	return f.cause
}

// AsFailure returns err as a *Failure, degrading unknown errors to a
// generic internal failure so no raw error text reaches clients.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	for e := err; e != nil; {
		if f, ok := e.(*Failure); ok {
			return f
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return NewFailure(FailInternal, err)
}
