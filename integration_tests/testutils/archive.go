package testutils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	jsoniter "github.com/json-iterator/go"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ArchiveGame is one replay held by the fake archive.
type ArchiveGame struct {
	ID          string
	GUID        string
	Date        time.Time
	Blue        []replaytypes.PlayerIdentity
	Orange      []replaytypes.PlayerIdentity
	BlueGoals   int
	OrangeGoals int
}

// FakeArchive serves the replay list and replay documents the way the public
// archive API does, from an in-memory set of games.
type FakeArchive struct {
	Server *httptest.Server

	mu       sync.Mutex
	games    []ArchiveGame
	requests []string
	// RateLimited makes every request answer 429 while set.
	RateLimited bool
}

func NewFakeArchive() *FakeArchive {
	a := &FakeArchive{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /replays", a.handleFilter)
	mux.HandleFunc("GET /replays/{id}", a.handleGet)
	a.Server = httptest.NewServer(mux)
	return a
}

func (a *FakeArchive) URL() string { return a.Server.URL }

func (a *FakeArchive) Close() { a.Server.Close() }

func (a *FakeArchive) Add(games ...ArchiveGame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.games = append(a.games, games...)
}

// Requests returns the paths requested so far, query strings dropped.
func (a *FakeArchive) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func (a *FakeArchive) record(r *http.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, r.URL.Path)
	return a.RateLimited
}

func (a *FakeArchive) handleFilter(w http.ResponseWriter, r *http.Request) {
	if a.record(r) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	wanted := r.URL.Query()["player-id"]
	after, _ := time.Parse(time.RFC3339, r.URL.Query().Get("created-after"))
	before, _ := time.Parse(time.RFC3339, r.URL.Query().Get("created-before"))

	a.mu.Lock()
	list := make([]map[string]any, 0, len(a.games))
	for _, g := range a.games {
		if g.Date.Before(after) || g.Date.After(before) || !g.hasAll(wanted) {
			continue
		}
		list = append(list, map[string]any{
			"id":     g.ID,
			"blue":   map[string]any{"players": summaryPlayers(g.Blue)},
			"orange": map[string]any{"players": summaryPlayers(g.Orange)},
		})
	}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "list": list})
}

func (a *FakeArchive) handleGet(w http.ResponseWriter, r *http.Request) {
	if a.record(r) {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	id := r.PathValue("id")

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, g := range a.games {
		if g.ID == id {
			writeJSON(w, http.StatusOK, g.Document())
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
}

func (g ArchiveGame) hasAll(keys []string) bool {
	have := make(map[string]bool, len(g.Blue)+len(g.Orange))
	for _, p := range append(append([]replaytypes.PlayerIdentity{}, g.Blue...), g.Orange...) {
		have[strings.ToLower(p.Key().String())] = true
	}
	for _, k := range keys {
		if !have[strings.ToLower(k)] {
			return false
		}
	}
	return true
}

// Document is the full replay document served for the game.
func (g ArchiveGame) Document() map[string]any {
	return map[string]any{
		"id":               g.ID,
		"match_guid":       g.GUID,
		"date":             g.Date.UTC().Format(time.RFC3339),
		"duration":         300,
		"overtime_seconds": 0,
		"blue":             teamDocument(g.Blue, g.BlueGoals),
		"orange":           teamDocument(g.Orange, g.OrangeGoals),
	}
}

func teamDocument(players []replaytypes.PlayerIdentity, goals int) map[string]any {
	list := make([]any, 0, len(players))
	for _, p := range players {
		list = append(list, map[string]any{
			"name":       p.Name,
			"id":         map[string]any{"platform": p.Platform, "id": p.PlatformID},
			"start_time": 0,
			"end_time":   300,
			"car_name":   "Octane",
			"stats": map[string]any{
				"core":     map[string]any{"goals": 1, "assists": 0, "saves": 1, "shots": 2, "score": 200},
				"demo":     map[string]any{"inflicted": 0, "taken": 1},
				"boost":    map[string]any{"amount_used_while_supersonic": 50.5, "time_zero_boost": 10.0},
				"movement": map[string]any{"avg_speed": 1500, "total_distance": 400000},
			},
		})
	}
	return map[string]any{
		"players": list,
		"stats": map[string]any{
			"core": map[string]any{"goals": goals},
			"ball": map[string]any{"time_in_side": 150.0},
		},
	}
}

func summaryPlayers(players []replaytypes.PlayerIdentity) []map[string]any {
	out := make([]map[string]any, 0, len(players))
	for _, p := range players {
		out = append(out, map[string]any{
			"name": p.Name,
			"id":   map[string]any{"platform": p.Platform, "id": p.PlatformID},
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RandomRoster generates n players with distinct names and platform ids.
func RandomRoster(faker *gofakeit.Faker, n int) []replaytypes.PlayerIdentity {
	out := make([]replaytypes.PlayerIdentity, 0, n)
	seen := make(map[string]bool, n)
	for len(out) < n {
		name := faker.Username()
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, replaytypes.PlayerIdentity{
			Name:       name,
			Platform:   faker.RandomString([]string{"steam", "epic", "ps4", "xbox"}),
			PlatformID: faker.DigitN(12),
		})
	}
	return out
}
