package replaytypes

import (
	"sort"
	"strings"
)

// PlatformKey identifies an account on a game platform, e.g. {"steam", "7656119..."}.
type PlatformKey struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platform_id"`
}

func (k PlatformKey) String() string { return k.Platform + ":" + k.PlatformID }

// Valid reports whether both halves of the key are present.
func (k PlatformKey) Valid() bool { return k.Platform != "" && k.PlatformID != "" }

// NewPlatformKey normalises the platform name; archive payloads and the registry
// disagree on case for some platforms.
func NewPlatformKey(platform, platformID string) PlatformKey {
	return PlatformKey{
		Platform:   strings.ToLower(strings.TrimSpace(platform)),
		PlatformID: strings.TrimSpace(platformID),
	}
}

// PlayerIdentity maps a canonical league name to a platform account.
type PlayerIdentity struct {
	Name       string `json:"name"`
	Platform   string `json:"platform"`
	PlatformID string `json:"platform_id"`
}

func (p PlayerIdentity) Key() PlatformKey { return NewPlatformKey(p.Platform, p.PlatformID) }

// IdentitySet is an unordered set of platform keys.
type IdentitySet map[PlatformKey]struct{}

func NewIdentitySet(keys ...PlatformKey) IdentitySet {
	s := make(IdentitySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s IdentitySet) Add(k PlatformKey) { s[k] = struct{}{} }

func (s IdentitySet) Has(k PlatformKey) bool {
	_, ok := s[k]
	return ok
}

// Equal is true when both sets hold exactly the same keys. Two empty sets are
// not considered equal: an empty roster never identifies a side.
func (s IdentitySet) Equal(other IdentitySet) bool {
	if len(s) == 0 || len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the keys in a stable order, for logs and filter queries.
func (s IdentitySet) Sorted() []PlatformKey {
	out := make([]PlatformKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].PlatformID < out[j].PlatformID
	})
	return out
}
