package replayexport

import (
	"fmt"
	"io"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/xuri/excelize/v2"
)

const (
	SheetGames   = "Games"
	SheetPlayers = "Players"
)

var gameHeader = []any{
	"game_id", "guid", "played_at", "url", "winning_org", "losing_org", "confidence",
	"duration", "overtime", "winner_goals", "loser_goals", "time_in_side_winner", "time_in_side_loser",
}

var playerHeader = []any{
	"game_id", "guid", "name", "duration", "goals", "assists", "saves", "shots", "score",
	"demos_inflicted", "demos_taken", "boost_while_supersonic", "time_zero_boost", "avg_speed",
	"distance_travelled", "car",
}

// BuildWorkbook lays out the exported records on one sheet per record type.
// Absent stats are left as empty cells.
func BuildWorkbook(export *replaytypes.StatsExport) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetGames); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name games sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetPlayers); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add players sheet: %w", err)
	}

	games := make([][]any, 0, len(export.Games)+1)
	games = append(games, gameHeader)
	for _, g := range export.Games {
		games = append(games, []any{
			g.GameID, g.GUID, g.PlayedAt.UTC().Format(time.RFC3339), cell(g.URL), g.WinningOrg, g.LosingOrg,
			string(g.WinnerConfidence), cell(g.Duration), cell(g.OvertimeDuration), cell(g.WinnerGoals),
			cell(g.LoserGoals), cell(g.TimeInSideWinner), cell(g.TimeInSideLoser),
		})
	}
	if err := writeRows(f, SheetGames, games); err != nil {
		f.Close()
		return nil, err
	}

	players := make([][]any, 0, len(export.Players)+1)
	players = append(players, playerHeader)
	for _, p := range export.Players {
		players = append(players, []any{
			p.GameID, p.GUID, p.Name, cell(p.Duration), cell(p.Goals), cell(p.Assists), cell(p.Saves),
			cell(p.Shots), cell(p.Score), cell(p.DemosInflicted), cell(p.DemosTaken),
			cell(p.BoostWhileSupersonic), cell(p.TimeZeroBoost), cell(p.AvgSpeed), cell(p.DistanceTravelled),
			cell(p.Car),
		})
	}
	if err := writeRows(f, SheetPlayers, players); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteWorkbook streams the workbook to w.
func WriteWorkbook(w io.Writer, export *replaytypes.StatsExport) error {
	f, err := BuildWorkbook(export)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cell[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
