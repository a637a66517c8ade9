package replayservice

import (
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// ResolveWinner maps the archive sides of one game to the series orgs. Side
// colours carry no meaning across games, so the mapping is decided by comparing
// each side's identity set with the registered rosters.
//
// When neither side lines up with a roster exactly, the registered loser is
// taken to have won the game and the result is marked inferred so callers can
// tell it apart from a confirmed reversal.
func ResolveWinner(replay replaytypes.Replay, series *replaytypes.Series, rosters replaytypes.Rosters) (replaytypes.Resolution, error) {
	p := newPayload(replay.Raw)

	side, err := winningSide(p)
	if err != nil {
		return replaytypes.Resolution{}, err
	}

	winners := p.identities(side)
	losers := p.identities(side.Other())

	switch {
	case winners.Equal(rosters.Winning) && losers.Equal(rosters.Losing):
		return replaytypes.Resolution{
			WinningOrg: series.WinningOrg,
			LosingOrg:  series.LosingOrg,
			WinnerSide: side,
			Confidence: replaytypes.ConfidenceMatched,
		}, nil
	case winners.Equal(rosters.Losing) && losers.Equal(rosters.Winning):
		return replaytypes.Resolution{
			WinningOrg: series.LosingOrg,
			LosingOrg:  series.WinningOrg,
			WinnerSide: side,
			Confidence: replaytypes.ConfidenceReversed,
		}, nil
	default:
		return replaytypes.Resolution{
			WinningOrg: series.LosingOrg,
			LosingOrg:  series.WinningOrg,
			WinnerSide: side,
			Confidence: replaytypes.ConfidenceInferred,
		}, nil
	}
}

// overrideResolution applies the orgs given on the job. The winning side is
// still taken from the goals when they decide the game, so goal fields can be
// filled in.
func overrideResolution(replay replaytypes.Replay, job replaytypes.Job) replaytypes.Resolution {
	res := replaytypes.Resolution{
		WinningOrg: *job.WinningOrg,
		LosingOrg:  *job.LosingOrg,
		Confidence: replaytypes.ConfidenceOverride,
	}
	if side, err := winningSide(newPayload(replay.Raw)); err == nil {
		res.WinnerSide = side
	}
	return res
}

func winningSide(p payload) (replaytypes.Side, error) {
	blue := p.teamGoals(replaytypes.SideBlue)
	orange := p.teamGoals(replaytypes.SideOrange)
	if !blue.Present || !orange.Present {
		return "", fmt.Errorf("%w: team goals missing", replaytypes.ErrAmbiguousResult)
	}
	if blue.Value == orange.Value {
		return "", fmt.Errorf("%w: goals tied at %d", replaytypes.ErrAmbiguousResult, blue.Value)
	}
	if blue.Value > orange.Value {
		return replaytypes.SideBlue, nil
	}
	return replaytypes.SideOrange, nil
}
