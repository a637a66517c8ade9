package replayservice

import (
	"math"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
)

// Optional is a field read from a replay payload. Present is false when the key
// path does not exist or holds null; Value is then the zero value and must not
// be stored.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Ptr returns nil for an absent field.
func (o Optional[T]) Ptr() *T {
	if !o.Present {
		return nil
	}
	v := o.Value
	return &v
}

func present[T any](v T) Optional[T] { return Optional[T]{Value: v, Present: true} }

// payload reads fields out of raw replay JSON by key path.
type payload struct {
	raw []byte
}

func newPayload(raw []byte) payload { return payload{raw: raw} }

func (p payload) lookup(path ...any) (jsoniter.Any, bool) {
	v := jsoniter.Get(p.raw, path...)
	switch v.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return nil, false
	}
	return v, true
}

func (p payload) Float(path ...any) Optional[float64] {
	v, ok := p.lookup(path...)
	if !ok || v.ValueType() != jsoniter.NumberValue {
		return Optional[float64]{}
	}
	return present(v.ToFloat64())
}

// Int is absent for a number with a fractional part.
func (p payload) Int(path ...any) Optional[int] {
	v, ok := p.lookup(path...)
	if !ok || v.ValueType() != jsoniter.NumberValue {
		return Optional[int]{}
	}
	f := v.ToFloat64()
	if f != math.Trunc(f) {
		return Optional[int]{}
	}
	return present(int(f))
}

func (p payload) String(path ...any) Optional[string] {
	v, ok := p.lookup(path...)
	if !ok {
		return Optional[string]{}
	}
	switch v.ValueType() {
	case jsoniter.StringValue:
		s := v.ToString()
		if s == "" {
			return Optional[string]{}
		}
		return present(s)
	case jsoniter.NumberValue:
		return present(v.ToString())
	}
	return Optional[string]{}
}

// Time parses an RFC 3339 timestamp such as 2025-03-14T19:22:31+01:00.
func (p payload) Time(path ...any) Optional[time.Time] {
	s := p.String(path...)
	if !s.Present {
		return Optional[time.Time]{}
	}
	t, err := time.Parse(time.RFC3339, s.Value)
	if err != nil {
		return Optional[time.Time]{}
	}
	return present(t.UTC())
}

func (p payload) Len(path ...any) int {
	v, ok := p.lookup(path...)
	if !ok || v.ValueType() != jsoniter.ArrayValue {
		return 0
	}
	return v.Size()
}

// participant is one player slot on one archive side.
type participant struct {
	side  replaytypes.Side
	index int
	name  string
	key   replaytypes.PlatformKey
}

func (p payload) participants(side replaytypes.Side) []participant {
	n := p.Len(string(side), "players")
	out := make([]participant, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, participant{
			side:  side,
			index: i,
			name:  p.String(string(side), "players", i, "name").Value,
			key: replaytypes.NewPlatformKey(
				p.String(string(side), "players", i, "id", "platform").Value,
				p.String(string(side), "players", i, "id", "id").Value,
			),
		})
	}
	return out
}

func (p payload) allParticipants() []participant {
	return append(p.participants(replaytypes.SideBlue), p.participants(replaytypes.SideOrange)...)
}

// identities is the set of valid platform keys on one side.
func (p payload) identities(side replaytypes.Side) replaytypes.IdentitySet {
	set := replaytypes.NewIdentitySet()
	for _, pt := range p.participants(side) {
		if pt.key.Valid() {
			set.Add(pt.key)
		}
	}
	return set
}

func (p payload) matchGUID() Optional[string] {
	s := p.String("match_guid")
	s.Value = strings.TrimSpace(s.Value)
	if s.Value == "" {
		return Optional[string]{}
	}
	return s
}

func (p payload) playedAt() Optional[time.Time] { return p.Time("date") }

func (p payload) teamGoals(side replaytypes.Side) Optional[int] {
	return p.Int(string(side), "stats", "core", "goals")
}
