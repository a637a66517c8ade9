package replayservice

import (
	"strings"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// resolvedParticipant is an archive participant with its league name.
type resolvedParticipant struct {
	participant
	name string
}

// NormalizeGame builds the game record for an accepted replay. Goal and
// time-in-side fields are only filled when the winning side is known.
func NormalizeGame(replay replaytypes.Replay, guid string, playedAt time.Time, gameID int64, res replaytypes.Resolution, replayURL string) replaytypes.GameStat {
	p := newPayload(replay.Raw)

	game := replaytypes.GameStat{
		GUID:             guid,
		URL:              sourceURL(p, replay.ID, replayURL),
		PlayedAt:         playedAt,
		GameID:           gameID,
		WinningOrg:       res.WinningOrg,
		LosingOrg:        res.LosingOrg,
		WinnerConfidence: res.Confidence,
		Duration:         p.Float("duration").Ptr(),
		OvertimeDuration: p.Float("overtime_seconds").Ptr(),
	}
	if res.WinnerSide != "" {
		w, l := string(res.WinnerSide), string(res.WinnerSide.Other())
		game.WinnerGoals = p.Int(w, "stats", "core", "goals").Ptr()
		game.LoserGoals = p.Int(l, "stats", "core", "goals").Ptr()
		game.TimeInSideWinner = p.Float(w, "stats", "ball", "time_in_side").Ptr()
		game.TimeInSideLoser = p.Float(l, "stats", "ball", "time_in_side").Ptr()
	}
	return game
}

// NormalizePlayers builds one record per resolved participant.
func NormalizePlayers(replay replaytypes.Replay, guid string, gameID int64, resolved []resolvedParticipant) []replaytypes.PlayerStat {
	p := newPayload(replay.Raw)
	out := make([]replaytypes.PlayerStat, 0, len(resolved))
	for _, rp := range resolved {
		out = append(out, normalizePlayer(p, rp, guid, gameID))
	}
	return out
}

func normalizePlayer(p payload, rp resolvedParticipant, guid string, gameID int64) replaytypes.PlayerStat {
	base := []any{string(rp.side), "players", rp.index}
	at := func(keys ...any) []any {
		path := make([]any, 0, len(base)+len(keys))
		return append(append(path, base...), keys...)
	}

	stat := replaytypes.PlayerStat{
		GUID:                 guid,
		Name:                 rp.name,
		GameID:               gameID,
		Goals:                p.Int(at("stats", "core", "goals")...).Ptr(),
		Assists:              p.Int(at("stats", "core", "assists")...).Ptr(),
		Saves:                p.Int(at("stats", "core", "saves")...).Ptr(),
		Shots:                p.Int(at("stats", "core", "shots")...).Ptr(),
		Score:                p.Int(at("stats", "core", "score")...).Ptr(),
		DemosInflicted:       p.Int(at("stats", "demo", "inflicted")...).Ptr(),
		DemosTaken:           p.Int(at("stats", "demo", "taken")...).Ptr(),
		BoostWhileSupersonic: p.Float(at("stats", "boost", "amount_used_while_supersonic")...).Ptr(),
		TimeZeroBoost:        p.Float(at("stats", "boost", "time_zero_boost")...).Ptr(),
		AvgSpeed:             p.Float(at("stats", "movement", "avg_speed")...).Ptr(),
		DistanceTravelled:    p.Float(at("stats", "movement", "total_distance")...).Ptr(),
	}

	start := p.Float(at("start_time")...)
	end := p.Float(at("end_time")...)
	if start.Present && end.Present {
		d := end.Value - start.Value
		stat.Duration = &d
	}

	car := p.String(at("car_name")...)
	if !car.Present {
		car = p.String(at("car_id")...)
	}
	stat.Car = car.Ptr()

	return stat
}

func sourceURL(p payload, fallbackID, replayURL string) *string {
	id := p.String("id")
	if !id.Present && fallbackID != "" {
		id = present(fallbackID)
	}
	if !id.Present {
		return nil
	}
	url := strings.TrimRight(replayURL, "/") + "/" + id.Value
	return &url
}
