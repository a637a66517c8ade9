package replayservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/samfeast/RLI-RLIS-v2/pkg/results"
	"github.com/uptrace/bun"
)

// maxRosterSize is the number of named players a side may report.
const maxRosterSize = 3

// Enqueue validates req against the reported series and queues it.
func (s *ReplayService) Enqueue(ctx context.Context, req EnqueueRequest) (replaytypes.Job, error) {
	enqueueTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[replaytypes.Job, error], error) {
		return s.enqueueLogic(ctx, db, req)
	}

	result, err := withTelemetry(s, ctx, "Enqueue", strconv.FormatInt(req.GameID, 10), func(ctx context.Context) (results.OperationResult[replaytypes.Job, error], error) {
		return runInTx(s, ctx, enqueueTx)
	})
	if err != nil {
		return replaytypes.Job{}, err
	}
	if result.IsFailure() {
		return replaytypes.Job{}, *result.Failure
	}
	return *result.Success, nil
}

func (s *ReplayService) enqueueLogic(ctx context.Context, db bun.IDB, req EnqueueRequest) (results.OperationResult[replaytypes.Job, error], error) {
	series, err := s.repos.Series.GetSeries(ctx, db, req.GameID)
	if err != nil {
		if errors.Is(err, replaydb.ErrNotFound) {
			return results.FailureResult[replaytypes.Job, error](fmt.Errorf("%w: %d", ErrSeriesNotFound, req.GameID)), nil
		}
		return results.OperationResult[replaytypes.Job, error]{}, fmt.Errorf("failed to load series: %w", err)
	}

	job, err := buildJob(req, series, s.now())
	if err != nil {
		return results.FailureResult[replaytypes.Job, error](err), nil
	}

	job, err = s.repos.Queue.Enqueue(ctx, db, job)
	if err != nil {
		return results.OperationResult[replaytypes.Job, error]{}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return results.SuccessResult[replaytypes.Job, error](job), nil
}

func buildJob(req EnqueueRequest, series *replaytypes.Series, now time.Time) (replaytypes.Job, error) {
	job := replaytypes.Job{GameID: series.GameID, EnqueuedAt: now}

	if id := replayIDFromInput(req.ReplayID); id != "" {
		job.ReplayID = &id
	}

	switch {
	case req.Start != nil && req.End != nil:
		start, end := req.Start.UTC(), req.End.UTC()
		if !end.After(start) {
			return replaytypes.Job{}, fmt.Errorf("%w: end must be after start", replaytypes.ErrValidation)
		}
		job.Start, job.End = &start, &end
	case req.Start != nil || req.End != nil:
		return replaytypes.Job{}, fmt.Errorf("%w: start and end must be given together", replaytypes.ErrValidation)
	}

	win, lose := strings.TrimSpace(req.WinningOrg), strings.TrimSpace(req.LosingOrg)
	switch {
	case win != "" && lose != "":
		w, l, err := matchOrgs(series, win, lose)
		if err != nil {
			return replaytypes.Job{}, err
		}
		job.WinningOrg, job.LosingOrg = &w, &l
	case win != "" || lose != "":
		return replaytypes.Job{}, fmt.Errorf("%w: winning and losing org must be given together", replaytypes.ErrValidation)
	}

	if req.AltPlayer != nil {
		alt, err := validAltPlayer(*req.AltPlayer)
		if err != nil {
			return replaytypes.Job{}, err
		}
		job.AltPlayer = &alt
	}
	return job, nil
}

// matchOrgs checks an override names the two orgs of the series and returns
// them as the series spells them.
func matchOrgs(series *replaytypes.Series, win, lose string) (string, string, error) {
	canonical := func(name string) (string, bool) {
		for _, org := range []string{series.WinningOrg, series.LosingOrg} {
			if strings.EqualFold(org, name) {
				return org, true
			}
		}
		return "", false
	}
	w, okW := canonical(win)
	l, okL := canonical(lose)
	if !okW || !okL || w == l {
		return "", "", fmt.Errorf("%w: override %q/%q does not match series orgs %q/%q",
			replaytypes.ErrValidation, win, lose, series.WinningOrg, series.LosingOrg)
	}
	return w, l, nil
}

func validAltPlayer(p replaytypes.PlayerIdentity) (replaytypes.PlayerIdentity, error) {
	key := p.Key()
	name := strings.TrimSpace(p.Name)
	if name == "" || !key.Valid() {
		return replaytypes.PlayerIdentity{}, fmt.Errorf("%w: alternate player needs a name, platform and platform id", replaytypes.ErrValidation)
	}
	return replaytypes.PlayerIdentity{Name: name, Platform: key.Platform, PlatformID: key.PlatformID}, nil
}

// replayIDFromInput accepts either a bare replay id or a replay page link.
func replayIDFromInput(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/replay/"); i >= 0 {
		s = s[i+len("/replay/"):]
	}
	if i := strings.IndexAny(s, "?#/"); i >= 0 {
		s = s[:i]
	}
	return s
}

// ReportSeries records a reported result and queues its reconciliation.
func (s *ReplayService) ReportSeries(ctx context.Context, report SeriesReport) (replaytypes.Job, error) {
	reportTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[replaytypes.Job, error], error) {
		return s.reportSeriesLogic(ctx, db, report)
	}

	identifier := report.WinningOrg + "-" + report.LosingOrg
	result, err := withTelemetry(s, ctx, "ReportSeries", identifier, func(ctx context.Context) (results.OperationResult[replaytypes.Job, error], error) {
		return runInTx(s, ctx, reportTx)
	})
	if err != nil {
		return replaytypes.Job{}, err
	}
	if result.IsFailure() {
		return replaytypes.Job{}, *result.Failure
	}
	return *result.Success, nil
}

func (s *ReplayService) reportSeriesLogic(ctx context.Context, db bun.IDB, report SeriesReport) (results.OperationResult[replaytypes.Job, error], error) {
	fail := func(err error) (results.OperationResult[replaytypes.Job, error], error) {
		return results.FailureResult[replaytypes.Job, error](err), nil
	}

	if report.PlayedPreviously < 0 {
		return fail(fmt.Errorf("%w: played_previously must not be negative", replaytypes.ErrValidation))
	}
	if len(report.WinningPlayers) > maxRosterSize || len(report.LosingPlayers) > maxRosterSize {
		return fail(fmt.Errorf("%w: at most %d players per side", replaytypes.ErrValidation, maxRosterSize))
	}
	if report.GamesWonByLoser != nil && *report.GamesWonByLoser < 0 {
		return fail(fmt.Errorf("%w: games won by loser must not be negative", replaytypes.ErrValidation))
	}

	gameID, err := s.league.GameID(report.WinningOrg, report.LosingOrg, report.Tier, report.Mode)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", replaytypes.ErrValidation, err))
	}

	job := replaytypes.Job{GameID: gameID, EnqueuedAt: s.now()}
	if report.AltPlayer != nil {
		alt, err := validAltPlayer(*report.AltPlayer)
		if err != nil {
			return fail(err)
		}
		job.AltPlayer = &alt
	}

	if _, err := s.repos.Series.GetSeries(ctx, db, gameID); err == nil {
		return fail(fmt.Errorf("%w: %d", ErrSeriesExists, gameID))
	} else if !errors.Is(err, replaydb.ErrNotFound) {
		return results.OperationResult[replaytypes.Job, error]{}, fmt.Errorf("failed to check existing series: %w", err)
	}

	reportedAt := report.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = s.now()
	}
	series := &replaytypes.Series{
		GameID:           gameID,
		Tier:             report.Tier,
		Mode:             report.Mode,
		ReportedAt:       reportedAt.UTC(),
		PlayedPreviously: report.PlayedPreviously,
		GamesWonByLoser:  report.GamesWonByLoser,
		WinningOrg:       report.WinningOrg,
		LosingOrg:        report.LosingOrg,
		WinningPlayers:   trimNames(report.WinningPlayers),
		LosingPlayers:    trimNames(report.LosingPlayers),
	}
	if err := s.repos.Series.CreateSeries(ctx, db, series); err != nil {
		return results.OperationResult[replaytypes.Job, error]{}, fmt.Errorf("failed to record series: %w", err)
	}

	job, err = s.repos.Queue.Enqueue(ctx, db, job)
	if err != nil {
		return results.OperationResult[replaytypes.Job, error]{}, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return results.SuccessResult[replaytypes.Job, error](job), nil
}

func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ListQueue returns the pending jobs, next to run first.
func (s *ReplayService) ListQueue(ctx context.Context) ([]replaytypes.Job, error) {
	result, err := withTelemetry(s, ctx, "ListQueue", "queue", func(ctx context.Context) (results.OperationResult[[]replaytypes.Job, error], error) {
		jobs, err := s.repos.Queue.List(ctx, nil)
		if err != nil {
			return results.OperationResult[[]replaytypes.Job, error]{}, fmt.Errorf("failed to list queue: %w", err)
		}
		s.metrics.RecordQueueDepth(ctx, len(jobs))
		return results.SuccessResult[[]replaytypes.Job, error](jobs), nil
	})
	if err != nil {
		return nil, err
	}
	return successOf(result), nil
}

// RegisterSub adds or updates a stand-in in the player registry.
func (s *ReplayService) RegisterSub(ctx context.Context, sub SubRegistration) error {
	result, err := withTelemetry(s, ctx, "RegisterSub", sub.Name, func(ctx context.Context) (results.OperationResult[bool, error], error) {
		key := replaytypes.NewPlatformKey(sub.Platform, sub.PlatformID)
		name := strings.TrimSpace(sub.Name)
		if name == "" || strings.TrimSpace(sub.DiscordID) == "" || !key.Valid() {
			return results.FailureResult[bool, error](fmt.Errorf("%w: sub needs a discord id, name, platform and platform id", replaytypes.ErrValidation)), nil
		}

		player := &replaydb.Player{
			DiscordID:  strings.TrimSpace(sub.DiscordID),
			Status:     replaydb.PlayerStatusSub,
			Name:       name,
			Platform:   key.Platform,
			PlatformID: key.PlatformID,
			Tier:       optionalString(sub.Tier),
			Org:        optionalString(sub.Org),
		}
		if err := s.repos.Players.Upsert(ctx, nil, player); err != nil {
			return results.OperationResult[bool, error]{}, fmt.Errorf("failed to register sub: %w", err)
		}
		return results.SuccessResult[bool, error](true), nil
	})
	if err != nil {
		return err
	}
	if result.IsFailure() {
		return *result.Failure
	}
	return nil
}

func optionalString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// ExportStats collects stored stats for the given series, or for every series
// of tier when no game ids are given.
func (s *ReplayService) ExportStats(ctx context.Context, tier string, gameIDs []int64) (*replaytypes.StatsExport, error) {
	result, err := withTelemetry(s, ctx, "ExportStats", tier, func(ctx context.Context) (results.OperationResult[*replaytypes.StatsExport, error], error) {
		ids := gameIDs
		if len(ids) == 0 {
			var err error
			ids, err = s.repos.Series.ListGameIDs(ctx, nil, tier)
			if err != nil {
				return results.OperationResult[*replaytypes.StatsExport, error]{}, fmt.Errorf("failed to list series: %w", err)
			}
		}

		out := &replaytypes.StatsExport{
			GameIDs: ids,
			Games:   []replaytypes.GameStat{},
			Players: []replaytypes.PlayerStat{},
		}
		for _, id := range ids {
			games, err := s.repos.Stats.GameStats(ctx, nil, id)
			if err != nil {
				return results.OperationResult[*replaytypes.StatsExport, error]{}, fmt.Errorf("failed to load games of %d: %w", id, err)
			}
			players, err := s.repos.Stats.PlayerStats(ctx, nil, id)
			if err != nil {
				return results.OperationResult[*replaytypes.StatsExport, error]{}, fmt.Errorf("failed to load players of %d: %w", id, err)
			}
			out.Games = append(out.Games, games...)
			out.Players = append(out.Players, players...)
		}
		return results.SuccessResult[*replaytypes.StatsExport, error](out), nil
	})
	if err != nil {
		return nil, err
	}
	return successOf(result), nil
}
