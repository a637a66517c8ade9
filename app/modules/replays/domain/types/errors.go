package replaytypes

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks a report or candidate missing a required field.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited marks a 429 from the replay archive.
	ErrRateLimited = errors.New("rate limited by replay archive")
	// ErrTransport marks any other failed archive call.
	ErrTransport = errors.New("replay archive transport error")
	// ErrAmbiguousResult marks a game whose winner cannot be determined.
	ErrAmbiguousResult = errors.New("ambiguous game result")
	// ErrCapExceeded marks a series that would hold more replays than it can have.
	ErrCapExceeded = errors.New("replay cap exceeded")
	// ErrUnknownParticipant marks a participant no league identity resolves.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrDuplicateReplay marks a guid already stored or already accepted this run.
	ErrDuplicateReplay = errors.New("duplicate replay")
	// ErrLobbyMismatch marks a lobby whose participant count does not fit the mode.
	ErrLobbyMismatch = errors.New("lobby size does not match mode")
	// ErrReplayNotFound marks the empty replay sentinel.
	ErrReplayNotFound = errors.New("replay not found")
)

// RateLimitedError carries the archive's 429 response as received.
type RateLimitedError struct {
	RetryAfter time.Duration
	Body       []byte
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// APIError is a non-success archive response other than 429.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", ErrTransport, e.Endpoint, e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrTransport }
