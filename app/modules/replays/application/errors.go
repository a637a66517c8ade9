package replayservice

import "errors"

var (
	// ErrSeriesExists is returned when a report repeats a game id.
	ErrSeriesExists = errors.New("series already reported")
	// ErrSeriesNotFound is returned when a job names an unknown game id.
	ErrSeriesNotFound = errors.New("series not found")
	// ErrNoIdentities is returned when none of a series' players are registered,
	// which would leave the archive search unfiltered.
	ErrNoIdentities = errors.New("no registered identities for series players")
)
