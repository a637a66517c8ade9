package replayservice

import (
	"context"
	"sort"
	"strings"
	"time"

	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replaydb "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/repositories"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Series Repo
// ------------------------

type FakeSeriesRepo struct {
	trace []string

	Series    map[int64]*replaytypes.Series
	Stats     *FakeStatsRepo
	Published []int64

	GetSeriesFunc            func(ctx context.Context, db bun.IDB, gameID int64) (*replaytypes.Series, error)
	RecomputeReplayCountFunc func(ctx context.Context, db bun.IDB, gameID int64) (int, bool, error)
	NextUnpublishedFunc      func(ctx context.Context, db bun.IDB) (*replaytypes.Series, error)
}

func NewFakeSeriesRepo(stats *FakeStatsRepo, series ...*replaytypes.Series) *FakeSeriesRepo {
	f := &FakeSeriesRepo{
		trace:  []string{},
		Series: map[int64]*replaytypes.Series{},
		Stats:  stats,
	}
	for _, s := range series {
		f.Series[s.GameID] = s
	}
	return f
}

func (f *FakeSeriesRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeSeriesRepo) GetSeries(ctx context.Context, db bun.IDB, gameID int64) (*replaytypes.Series, error) {
	f.record("GetSeries")
	if f.GetSeriesFunc != nil {
		return f.GetSeriesFunc(ctx, db, gameID)
	}
	s, ok := f.Series[gameID]
	if !ok {
		return nil, replaydb.ErrNotFound
	}
	cp := *s
	cp.ExistingGUIDs = append([]string{}, s.ExistingGUIDs...)
	return &cp, nil
}

func (f *FakeSeriesRepo) CreateSeries(ctx context.Context, db bun.IDB, series *replaytypes.Series) error {
	f.record("CreateSeries")
	f.Series[series.GameID] = series
	return nil
}

// RecomputeReplayCount counts the series' seeded guids plus the games inserted
// through the stats fake.
func (f *FakeSeriesRepo) RecomputeReplayCount(ctx context.Context, db bun.IDB, gameID int64) (int, bool, error) {
	f.record("RecomputeReplayCount")
	if f.RecomputeReplayCountFunc != nil {
		return f.RecomputeReplayCountFunc(ctx, db, gameID)
	}
	s, ok := f.Series[gameID]
	if !ok {
		return 0, false, replaydb.ErrNotFound
	}
	count := len(s.ExistingGUIDs)
	if f.Stats != nil {
		count += len(f.Stats.gamesOf(gameID))
	}
	changed := s.ReplaysStored == nil || *s.ReplaysStored != count
	if changed {
		s.ReplaysStored = &count
		s.Published = false
	}
	return count, changed, nil
}

func (f *FakeSeriesRepo) NextUnpublished(ctx context.Context, db bun.IDB) (*replaytypes.Series, error) {
	f.record("NextUnpublished")
	if f.NextUnpublishedFunc != nil {
		return f.NextUnpublishedFunc(ctx, db)
	}
	var next *replaytypes.Series
	for _, s := range f.Series {
		if s.Published || s.ReplaysStored == nil {
			continue
		}
		if next == nil || s.ReportedAt.Before(next.ReportedAt) {
			next = s
		}
	}
	if next == nil {
		return nil, replaydb.ErrNotFound
	}
	return next, nil
}

func (f *FakeSeriesRepo) MarkPublished(ctx context.Context, db bun.IDB, gameID int64) error {
	f.record("MarkPublished")
	s, ok := f.Series[gameID]
	if !ok {
		return replaydb.ErrNotFound
	}
	s.Published = true
	f.Published = append(f.Published, gameID)
	return nil
}

func (f *FakeSeriesRepo) ListGameIDs(ctx context.Context, db bun.IDB, tier string) ([]int64, error) {
	f.record("ListGameIDs")
	var ids []int64
	for id, s := range f.Series {
		if tier == "" || strings.EqualFold(s.Tier, tier) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *FakeSeriesRepo) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ replaydb.SeriesRepository = (*FakeSeriesRepo)(nil)

// ------------------------
// Fake Player Repo
// ------------------------

type FakePlayerRepo struct {
	trace []string

	Registry []replaytypes.PlayerIdentity
	Upserted []*replaydb.Player

	FindByPlatformFunc func(ctx context.Context, db bun.IDB, key replaytypes.PlatformKey) (*replaytypes.PlayerIdentity, error)
}

func NewFakePlayerRepo(registry ...replaytypes.PlayerIdentity) *FakePlayerRepo {
	return &FakePlayerRepo{trace: []string{}, Registry: registry}
}

func (f *FakePlayerRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakePlayerRepo) FindByPlatform(ctx context.Context, db bun.IDB, key replaytypes.PlatformKey) (*replaytypes.PlayerIdentity, error) {
	f.record("FindByPlatform")
	if f.FindByPlatformFunc != nil {
		return f.FindByPlatformFunc(ctx, db, key)
	}
	for _, p := range f.Registry {
		if p.Key() == key {
			found := p
			return &found, nil
		}
	}
	return nil, replaydb.ErrNotFound
}

func (f *FakePlayerRepo) FindByNames(ctx context.Context, db bun.IDB, names []string) ([]replaytypes.PlayerIdentity, error) {
	f.record("FindByNames")
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := []replaytypes.PlayerIdentity{}
	for _, p := range f.Registry {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *FakePlayerRepo) Upsert(ctx context.Context, db bun.IDB, player *replaydb.Player) error {
	f.record("Upsert")
	f.Upserted = append(f.Upserted, player)
	return nil
}

func (f *FakePlayerRepo) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ replaydb.PlayerRepository = (*FakePlayerRepo)(nil)

// ------------------------
// Fake Stats Repo
// ------------------------

type FakeStatsRepo struct {
	trace []string

	Games   []replaytypes.GameStat
	Players []replaytypes.PlayerStat

	InsertGameFunc func(ctx context.Context, db bun.IDB, game replaytypes.GameStat, players []replaytypes.PlayerStat) error
}

func NewFakeStatsRepo() *FakeStatsRepo {
	return &FakeStatsRepo{trace: []string{}}
}

func (f *FakeStatsRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeStatsRepo) InsertGame(ctx context.Context, db bun.IDB, game replaytypes.GameStat, players []replaytypes.PlayerStat) error {
	f.record("InsertGame")
	if f.InsertGameFunc != nil {
		return f.InsertGameFunc(ctx, db, game, players)
	}
	for _, g := range f.Games {
		if g.GUID == game.GUID {
			return errDuplicateKey
		}
	}
	f.Games = append(f.Games, game)
	f.Players = append(f.Players, players...)
	return nil
}

func (f *FakeStatsRepo) gamesOf(gameID int64) []replaytypes.GameStat {
	var out []replaytypes.GameStat
	for _, g := range f.Games {
		if g.GameID == gameID {
			out = append(out, g)
		}
	}
	return out
}

func (f *FakeStatsRepo) ReplayURLs(ctx context.Context, db bun.IDB, gameID int64) ([]string, error) {
	f.record("ReplayURLs")
	games := f.gamesOf(gameID)
	sort.Slice(games, func(i, j int) bool { return games[i].PlayedAt.Before(games[j].PlayedAt) })
	var urls []string
	for _, g := range games {
		if g.URL != nil {
			urls = append(urls, *g.URL)
		}
	}
	return urls, nil
}

func (f *FakeStatsRepo) GameStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.GameStat, error) {
	f.record("GameStats")
	return f.gamesOf(gameID), nil
}

func (f *FakeStatsRepo) PlayerStats(ctx context.Context, db bun.IDB, gameID int64) ([]replaytypes.PlayerStat, error) {
	f.record("PlayerStats")
	var out []replaytypes.PlayerStat
	for _, p := range f.Players {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *FakeStatsRepo) guids() []string {
	out := make([]string, 0, len(f.Games))
	for _, g := range f.Games {
		out = append(out, g.GUID)
	}
	return out
}

func (f *FakeStatsRepo) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ replaydb.StatsRepository = (*FakeStatsRepo)(nil)

// ------------------------
// Fake Queue Repo
// ------------------------

type FakeQueueRepo struct {
	trace []string

	Jobs  []replaytypes.Job
	Acked []int64
}

func NewFakeQueueRepo(jobs ...replaytypes.Job) *FakeQueueRepo {
	return &FakeQueueRepo{trace: []string{}, Jobs: jobs}
}

func (f *FakeQueueRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeQueueRepo) Enqueue(ctx context.Context, db bun.IDB, job replaytypes.Job) (replaytypes.Job, error) {
	f.record("Enqueue")
	var max int64
	for _, j := range f.Jobs {
		if j.Priority > max {
			max = j.Priority
		}
	}
	job.Priority = max + 1
	f.Jobs = append(f.Jobs, job)
	return job, nil
}

func (f *FakeQueueRepo) Dequeue(ctx context.Context, db bun.IDB, now time.Time, lease time.Duration) (replaytypes.Job, error) {
	f.record("Dequeue")
	if len(f.Jobs) == 0 {
		return replaytypes.Job{}, replaydb.ErrQueueEmpty
	}
	best := f.Jobs[0]
	for _, j := range f.Jobs[1:] {
		if j.Priority > best.Priority {
			best = j
		}
	}
	return best, nil
}

func (f *FakeQueueRepo) Ack(ctx context.Context, db bun.IDB, priority int64) error {
	f.record("Ack")
	f.Acked = append(f.Acked, priority)
	kept := f.Jobs[:0]
	for _, j := range f.Jobs {
		if j.Priority != priority {
			kept = append(kept, j)
		}
	}
	f.Jobs = kept
	return nil
}

func (f *FakeQueueRepo) List(ctx context.Context, db bun.IDB) ([]replaytypes.Job, error) {
	f.record("List")
	out := append([]replaytypes.Job{}, f.Jobs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *FakeQueueRepo) Count(ctx context.Context, db bun.IDB) (int, error) {
	f.record("Count")
	return len(f.Jobs), nil
}

func (f *FakeQueueRepo) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ replaydb.QueueRepository = (*FakeQueueRepo)(nil)

// ------------------------
// Fake Replay Source
// ------------------------

type FakeSource struct {
	FilterResult replaytypes.FilterResult
	FilterErr    error
	Replays      map[string]replaytypes.Replay
	GetErrs      map[string]error

	FilterCalls   int
	FilterWindow  replaytypes.Window
	FilterPlayers []replaytypes.PlatformKey
	Gets          []string
	GetTimes      []time.Time
	// OnGet runs before each Get is answered.
	OnGet func(id string)
}

func NewFakeSource() *FakeSource {
	return &FakeSource{
		Replays: map[string]replaytypes.Replay{},
		GetErrs: map[string]error{},
	}
}

// Add registers a replay and lists it in the filter result.
func (f *FakeSource) Add(id string, raw []byte) {
	f.Replays[id] = replaytypes.Replay{ID: id, Raw: raw}
	f.List(id)
}

// List appends ids to the filter result without registering payloads.
func (f *FakeSource) List(ids ...string) {
	for _, id := range ids {
		f.FilterResult.List = append(f.FilterResult.List, replaytypes.CandidateSummary{ID: id})
	}
	f.FilterResult.Count = len(f.FilterResult.List)
}

func (f *FakeSource) Filter(ctx context.Context, window replaytypes.Window, players []replaytypes.PlatformKey) (replaytypes.FilterResult, error) {
	f.FilterCalls++
	f.FilterWindow = window
	f.FilterPlayers = players
	if f.FilterErr != nil {
		return replaytypes.FilterResult{}, f.FilterErr
	}
	return f.FilterResult, nil
}

func (f *FakeSource) Get(ctx context.Context, id string) (replaytypes.Replay, error) {
	f.Gets = append(f.Gets, id)
	f.GetTimes = append(f.GetTimes, time.Now())
	if f.OnGet != nil {
		f.OnGet(id)
	}
	if err := f.GetErrs[id]; err != nil {
		return replaytypes.Replay{}, err
	}
	r, ok := f.Replays[id]
	if !ok {
		return replaytypes.Replay{ID: id, Raw: []byte("{}")}, nil
	}
	return r, nil
}

var _ ReplaySource = (*FakeSource)(nil)

// ------------------------
// Fake Event Publisher
// ------------------------

type FakePublisher struct {
	Reports   []*replaytypes.RunReport
	Summaries []*replaytypes.SeriesSummary
	Err       error
}

func (f *FakePublisher) PublishRunReport(ctx context.Context, report *replaytypes.RunReport) error {
	f.Reports = append(f.Reports, report)
	return f.Err
}

func (f *FakePublisher) PublishSeriesSummary(ctx context.Context, summary *replaytypes.SeriesSummary) error {
	if f.Err != nil {
		return f.Err
	}
	f.Summaries = append(f.Summaries, summary)
	return nil
}

var _ EventPublisher = (*FakePublisher)(nil)
