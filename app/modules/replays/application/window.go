package replayservice

import (
	"fmt"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

const day = 24 * time.Hour

// ResolveWindow returns the half-open UTC search range for a job. Explicit bounds
// on the job win; otherwise the range is derived from when the series was
// reported and how many days earlier it was played.
func ResolveWindow(job replaytypes.Job, series *replaytypes.Series) (replaytypes.Window, error) {
	if job.Start != nil && job.End != nil {
		w := replaytypes.Window{Start: job.Start.UTC(), End: job.End.UTC()}
		if !w.End.After(w.Start) {
			return replaytypes.Window{}, fmt.Errorf("%w: window end %s is not after start %s",
				replaytypes.ErrValidation, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
		}
		return w, nil
	}
	if series == nil {
		return replaytypes.Window{}, fmt.Errorf("%w: no series to derive a window from", replaytypes.ErrValidation)
	}
	return windowFromReport(series.ReportedAt, series.PlayedPreviously)
}

func windowFromReport(reportedAt time.Time, playedPreviously int) (replaytypes.Window, error) {
	if playedPreviously < 0 {
		return replaytypes.Window{}, fmt.Errorf("%w: played_previously %d is negative",
			replaytypes.ErrValidation, playedPreviously)
	}
	report := reportedAt.UTC()
	if playedPreviously == 0 {
		return replaytypes.Window{Start: startOfDay(report), End: report}, nil
	}
	end := startOfDay(report.Add(-time.Duration(playedPreviously-1) * day))
	return replaytypes.Window{Start: end.Add(-day), End: end}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
