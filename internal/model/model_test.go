package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusProcessing))
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusFailed))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusCompleted))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusFailed))

	// No transition ever revisits pending, and terminal states are sticky.
	assert.False(t, JobStatusProcessing.CanTransitionTo(JobStatusPending))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusProcessing))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusFailed))
	assert.False(t, JobStatusFailed.CanTransitionTo(JobStatusCompleted))
	assert.False(t, JobStatusFailed.CanTransitionTo(JobStatusPending))
}

func TestFailureUserSafeMessage(t *testing.T) {
	cause := errors.New("yt-dlp exit status 1: ERROR: Private video, sign in")
	f := NewFailure(FailSourcePrivate, cause)

	assert.Equal(t, FailSourcePrivate, f.Code)
	assert.NotContains(t, f.Message, "yt-dlp")
	assert.ErrorIs(t, f, cause)
}

func TestFailureUnknownCodeDegrades(t *testing.T) {
	f := NewFailure(FailureCode("SOMETHING_NEW"), nil)
	assert.Equal(t, FailInternal, f.Code)
	assert.Equal(t, "Processing failed. Please try again", f.Message)
}

func TestAsFailure(t *testing.T) {
	inner := NewFailure(FailStageTimeout, errors.New("signal: killed"))
	wrapped := fmt.Errorf("stage transform: %w", inner)

	f := AsFailure(wrapped)
	assert.Equal(t, FailStageTimeout, f.Code)

	// Arbitrary errors never leak their text.
	g := AsFailure(errors.New("dial tcp 10.0.0.8: connection refused"))
	assert.Equal(t, FailInternal, g.Code)
	assert.NotContains(t, g.Message, "10.0.0.8")

	assert.Nil(t, AsFailure(nil))
}

func TestIsValidSourceKind(t *testing.T) {
	assert.True(t, IsValidSourceKind("upload"))
	assert.True(t, IsValidSourceKind("youtube"))
	assert.False(t, IsValidSourceKind("soundcloud"))
	assert.False(t, IsValidSourceKind(""))
}
