package replayservice

import (
	"context"
	"errors"
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/samfeast/RLI-RLIS-v2/pkg/results"
	"github.com/uptrace/bun"
)

// PublishNext announces the oldest series whose replays were reconciled since
// it was last published.
func (s *ReplayService) PublishNext(ctx context.Context) (*replaytypes.SeriesSummary, error) {
	publishTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*replaytypes.SeriesSummary, error], error) {
		return s.publishNextLogic(ctx, db)
	}

	result, err := withTelemetry(s, ctx, "PublishNext", "series", func(ctx context.Context) (results.OperationResult[*replaytypes.SeriesSummary, error], error) {
		return runInTx(s, ctx, publishTx)
	})
	if err != nil {
		return nil, err
	}
	return successOf(result), nil
}

func (s *ReplayService) publishNextLogic(ctx context.Context, db bun.IDB) (results.OperationResult[*replaytypes.SeriesSummary, error], error) {
	series, err := s.repos.Series.NextUnpublished(ctx, db)
	if err != nil {
		if errors.Is(err, replaydb.ErrNotFound) {
			return results.SuccessResult[*replaytypes.SeriesSummary, error](nil), nil
		}
		return results.OperationResult[*replaytypes.SeriesSummary, error]{}, fmt.Errorf("failed to load unpublished series: %w", err)
	}

	summary, err := s.summarize(ctx, db, series)
	if err != nil {
		return results.OperationResult[*replaytypes.SeriesSummary, error]{}, err
	}

	if s.events != nil {
		if err := s.events.PublishSeriesSummary(ctx, summary); err != nil {
			return results.OperationResult[*replaytypes.SeriesSummary, error]{}, fmt.Errorf("failed to publish series %d: %w", series.GameID, err)
		}
	}
	if err := s.repos.Series.MarkPublished(ctx, db, series.GameID); err != nil {
		return results.OperationResult[*replaytypes.SeriesSummary, error]{}, fmt.Errorf("failed to mark series %d published: %w", series.GameID, err)
	}

	s.metrics.RecordSeriesPublished(ctx, string(summary.Completeness))
	return results.SuccessResult[*replaytypes.SeriesSummary, error](summary), nil
}

func (s *ReplayService) summarize(ctx context.Context, db bun.IDB, series *replaytypes.Series) (*replaytypes.SeriesSummary, error) {
	gamesToWin, err := s.league.GamesToWin(series.Mode)
	if err != nil {
		return nil, fmt.Errorf("series %d: %w", series.GameID, err)
	}
	urls, err := s.repos.Stats.ReplayURLs(ctx, db, series.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load replay links: %w", err)
	}
	if urls == nil {
		urls = []string{}
	}

	found := len(series.ExistingGUIDs)
	if series.ReplaysStored != nil {
		found = *series.ReplaysStored
	}
	expected := replaytypes.ExpectedGames(gamesToWin, series.GamesWonByLoser)

	return &replaytypes.SeriesSummary{
		GameID:          series.GameID,
		Tier:            series.Tier,
		Mode:            series.Mode,
		WinningOrg:      series.WinningOrg,
		LosingOrg:       series.LosingOrg,
		GamesToWin:      gamesToWin,
		GamesWonByLoser: series.GamesWonByLoser,
		WinningPlayers:  series.WinningPlayers,
		LosingPlayers:   series.LosingPlayers,
		ReplayURLs:      urls,
		Found:           found,
		Expected:        expected,
		Completeness:    replaytypes.GradeCompleteness(found, expected),
		ReportedAt:      series.ReportedAt,
	}, nil
}
