package replayservice

import (
	"errors"
	"fmt"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// candidateFilter tracks the guids a series already has plus the ones admitted
// during the current run.
type candidateFilter struct {
	guids                map[string]struct{}
	expectedParticipants int
}

func newCandidateFilter(existing []string, expectedParticipants int) *candidateFilter {
	guids := make(map[string]struct{}, len(existing))
	for _, g := range existing {
		guids[g] = struct{}{}
	}
	return &candidateFilter{guids: guids, expectedParticipants: expectedParticipants}
}

// admit checks one fetched replay and, when it passes, adds its guid to the set
// straight away so a repeat later in the same batch is caught.
func (f *candidateFilter) admit(p payload) (string, time.Time, error) {
	guid := p.matchGUID()
	playedAt := p.playedAt()
	if !guid.Present || !playedAt.Present {
		return "", time.Time{}, fmt.Errorf("%w: replay has no match_guid or date", replaytypes.ErrValidation)
	}
	if _, dup := f.guids[guid.Value]; dup {
		return guid.Value, playedAt.Value, fmt.Errorf("%w: %s", replaytypes.ErrDuplicateReplay, guid.Value)
	}
	if n := len(p.allParticipants()); n != f.expectedParticipants {
		return guid.Value, playedAt.Value, fmt.Errorf("%w: %d participants, want %d",
			replaytypes.ErrLobbyMismatch, n, f.expectedParticipants)
	}
	f.guids[guid.Value] = struct{}{}
	return guid.Value, playedAt.Value, nil
}

// release forgets a guid admitted earlier in the run that was not stored.
func (f *candidateFilter) release(guid string) { delete(f.guids, guid) }

func (f *candidateFilter) size() int { return len(f.guids) }

// rejectReason maps a candidate error to its report bucket.
func rejectReason(err error) replaytypes.RejectReason {
	switch {
	case errors.Is(err, replaytypes.ErrValidation):
		return replaytypes.RejectInvalid
	case errors.Is(err, replaytypes.ErrDuplicateReplay):
		return replaytypes.RejectDuplicate
	case errors.Is(err, replaytypes.ErrLobbyMismatch):
		return replaytypes.RejectLobbyMismatch
	case errors.Is(err, replaytypes.ErrAmbiguousResult):
		return replaytypes.RejectAmbiguous
	case errors.Is(err, replaytypes.ErrCapExceeded):
		return replaytypes.RejectCapExceeded
	case errors.Is(err, replaytypes.ErrReplayNotFound):
		return replaytypes.RejectNotFound
	}
	return replaytypes.RejectInvalid
}
