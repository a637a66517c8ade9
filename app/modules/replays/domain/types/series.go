package replaytypes

import "time"

// Series is the reported result the engine reconciles against.
type Series struct {
	GameID           int64     `json:"game_id"`
	Tier             string    `json:"tier"`
	Mode             int       `json:"mode"`
	ReportedAt       time.Time `json:"reported_at"`
	PlayedPreviously int       `json:"played_previously"`
	GamesWonByLoser  *int      `json:"games_won_by_loser,omitempty"`
	WinningOrg       string    `json:"winning_org"`
	LosingOrg        string    `json:"losing_org"`
	WinningPlayers   []string  `json:"winning_players"`
	LosingPlayers    []string  `json:"losing_players"`
	ExistingGUIDs    []string  `json:"existing_guids"`
	ReplaysStored    *int      `json:"replays_stored,omitempty"`
	Published        bool      `json:"published"`
}

// PlayerNames returns both rosters, winners first.
func (s Series) PlayerNames() []string {
	names := make([]string, 0, len(s.WinningPlayers)+len(s.LosingPlayers))
	names = append(names, s.WinningPlayers...)
	names = append(names, s.LosingPlayers...)
	return names
}

// ExpectedParticipants is the lobby size for the series mode.
func (s Series) ExpectedParticipants() int { return 2 * s.Mode }

// MaxGames is the most replays a series can legitimately have: 2w-1 for a series
// won at w games, or the recorded w+loserWins when that is larger.
func MaxGames(gamesToWin int, gamesWonByLoser *int) int {
	base := 2*gamesToWin - 1
	if gamesWonByLoser != nil {
		if played := gamesToWin + *gamesWonByLoser; played > base {
			return played
		}
	}
	return base
}

// ExpectedGames is the number of games the report says were played, or 0 when the
// loser's wins are unknown.
func ExpectedGames(gamesToWin int, gamesWonByLoser *int) int {
	if gamesWonByLoser == nil {
		return 0
	}
	return gamesToWin + *gamesWonByLoser
}

// Rosters holds the registered identities of both orgs of a series.
type Rosters struct {
	Winning IdentitySet
	Losing  IdentitySet
}

// Side is an archive team colour.
type Side string

const (
	SideBlue   Side = "blue"
	SideOrange Side = "orange"
)

func (s Side) Other() Side {
	if s == SideBlue {
		return SideOrange
	}
	return SideBlue
}

// Confidence records how a game's winning org was determined.
type Confidence string

const (
	// ConfidenceOverride means the job named the orgs.
	ConfidenceOverride Confidence = "override"
	// ConfidenceMatched means the winning side equals the registered winning roster.
	ConfidenceMatched Confidence = "matched"
	// ConfidenceReversed means the winning side equals the registered losing roster.
	ConfidenceReversed Confidence = "reversed"
	// ConfidenceInferred means neither roster matched exactly and the inverse mapping was assumed.
	ConfidenceInferred Confidence = "inferred"
)

// Resolution is the winner of one game in league terms.
type Resolution struct {
	WinningOrg string     `json:"winning_org"`
	LosingOrg  string     `json:"losing_org"`
	WinnerSide Side       `json:"winner_side"`
	Confidence Confidence `json:"confidence"`
}
