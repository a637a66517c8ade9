package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownLeagueEntry is returned when an org, tier or mode is not configured.
var ErrUnknownLeagueEntry = errors.New("unknown league entry")

// LeagueConfig is the YAML shape of the league definition.
type LeagueConfig struct {
	Orgs  []OrgConfig  `yaml:"orgs"`
	Tiers []TierConfig `yaml:"tiers"`
	Modes []ModeConfig `yaml:"modes"`
}

type OrgConfig struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

type TierConfig struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

// ModeConfig describes one team size. GamesToWin is the number of game wins that
// take a series, so a best-of-5 has GamesToWin 3.
type ModeConfig struct {
	Mode       int `yaml:"mode"`
	GamesToWin int `yaml:"games_to_win"`
	PointsWin  int `yaml:"points_win"`
	PointsLoss int `yaml:"points_loss"`
}

// DefaultModes is used when the configuration names no modes: best-of-5 in every mode.
func DefaultModes() []ModeConfig {
	return []ModeConfig{
		{Mode: 1, GamesToWin: 3, PointsWin: 1},
		{Mode: 2, GamesToWin: 3, PointsWin: 2},
		{Mode: 3, GamesToWin: 3, PointsWin: 3},
	}
}

// League is the validated, read-only league definition handed to the engine.
type League struct {
	orgs    map[string]int
	orgList []OrgConfig
	tiers   map[string]int
	modes   map[int]ModeConfig
}

// NewLeague validates cfg and freezes it. Names are matched case-insensitively.
func NewLeague(cfg LeagueConfig) (*League, error) {
	l := &League{
		orgs:  make(map[string]int, len(cfg.Orgs)),
		tiers: make(map[string]int, len(cfg.Tiers)),
		modes: make(map[int]ModeConfig, len(cfg.Modes)),
	}

	seenOrgIDs := make(map[int]string)
	for _, o := range cfg.Orgs {
		key := normalizeName(o.Name)
		if key == "" {
			return nil, errors.New("league: org with empty name")
		}
		if o.ID <= 0 {
			return nil, fmt.Errorf("league: org %q must have a positive id", o.Name)
		}
		if _, dup := l.orgs[key]; dup {
			return nil, fmt.Errorf("league: duplicate org %q", o.Name)
		}
		if other, dup := seenOrgIDs[o.ID]; dup {
			return nil, fmt.Errorf("league: orgs %q and %q share id %d", other, o.Name, o.ID)
		}
		seenOrgIDs[o.ID] = o.Name
		l.orgs[key] = o.ID
		l.orgList = append(l.orgList, OrgConfig{Name: strings.TrimSpace(o.Name), ID: o.ID})
	}
	sort.Slice(l.orgList, func(i, j int) bool { return l.orgList[i].ID < l.orgList[j].ID })

	for _, t := range cfg.Tiers {
		key := normalizeName(t.Name)
		if key == "" {
			return nil, errors.New("league: tier with empty name")
		}
		if t.ID <= 0 {
			return nil, fmt.Errorf("league: tier %q must have a positive id", t.Name)
		}
		if _, dup := l.tiers[key]; dup {
			return nil, fmt.Errorf("league: duplicate tier %q", t.Name)
		}
		l.tiers[key] = t.ID
	}

	modes := cfg.Modes
	if len(modes) == 0 {
		modes = DefaultModes()
	}
	for _, m := range modes {
		if m.Mode < 1 || m.Mode > 3 {
			return nil, fmt.Errorf("league: mode %d out of range 1-3", m.Mode)
		}
		if m.GamesToWin < 1 {
			return nil, fmt.Errorf("league: mode %d needs games_to_win >= 1", m.Mode)
		}
		l.modes[m.Mode] = m
	}

	return l, nil
}

// OrgID returns the numeric id of the named org.
func (l *League) OrgID(name string) (int, error) {
	id, ok := l.orgs[normalizeName(name)]
	if !ok {
		return 0, fmt.Errorf("org %q: %w", name, ErrUnknownLeagueEntry)
	}
	return id, nil
}

// TierID returns the numeric id of the named tier.
func (l *League) TierID(name string) (int, error) {
	id, ok := l.tiers[normalizeName(name)]
	if !ok {
		return 0, fmt.Errorf("tier %q: %w", name, ErrUnknownLeagueEntry)
	}
	return id, nil
}

// Mode returns the rules for a team size.
func (l *League) Mode(mode int) (ModeConfig, error) {
	m, ok := l.modes[mode]
	if !ok {
		return ModeConfig{}, fmt.Errorf("mode %d: %w", mode, ErrUnknownLeagueEntry)
	}
	return m, nil
}

// GamesToWin returns the number of wins that take a series in mode.
func (l *League) GamesToWin(mode int) (int, error) {
	m, err := l.Mode(mode)
	if err != nil {
		return 0, err
	}
	return m.GamesToWin, nil
}

// Orgs lists configured org names in id order.
func (l *League) Orgs() []string {
	names := make([]string, 0, len(l.orgList))
	for _, o := range l.orgList {
		names = append(names, o.Name)
	}
	return names
}

// GameID derives the series key for two orgs meeting in a tier and mode.
func (l *League) GameID(orgA, orgB, tier string, mode int) (int64, error) {
	a, err := l.OrgID(orgA)
	if err != nil {
		return 0, err
	}
	b, err := l.OrgID(orgB)
	if err != nil {
		return 0, err
	}
	if a == b {
		return 0, fmt.Errorf("org %q cannot play itself", orgA)
	}
	t, err := l.TierID(tier)
	if err != nil {
		return 0, err
	}
	if _, err := l.Mode(mode); err != nil {
		return 0, err
	}
	return ComposeGameID(a, b, t, mode)
}

// ComposeGameID concatenates the decimal forms of the larger org id, the smaller
// org id, the tier id and the mode. The key is independent of which org won.
func ComposeGameID(orgA, orgB, tierID, mode int) (int64, error) {
	hi, lo := orgA, orgB
	if lo > hi {
		hi, lo = lo, hi
	}
	raw := strconv.Itoa(hi) + strconv.Itoa(lo) + strconv.Itoa(tierID) + strconv.Itoa(mode)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("compose game id: %w", err)
	}
	return id, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
