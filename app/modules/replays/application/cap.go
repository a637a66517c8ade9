package replayservice

import (
	"fmt"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// capEnforcer bounds the number of distinct replays a series may hold.
type capEnforcer struct {
	max int
}

func newCapEnforcer(gamesToWin int, gamesWonByLoser *int) capEnforcer {
	return capEnforcer{max: replaytypes.MaxGames(gamesToWin, gamesWonByLoser)}
}

// allow is called with the guid count after a candidate was admitted. Any
// overflow ends the run: the remaining candidates came from the same search and
// are equally suspect.
func (c capEnforcer) allow(size int) error {
	if size > c.max {
		return fmt.Errorf("%w: %d replays, series allows %d", replaytypes.ErrCapExceeded, size, c.max)
	}
	return nil
}
