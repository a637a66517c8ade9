package replaytime

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Clock abstracts the current time for tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

var layouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// TimeParser turns operator input such as "yesterday at 8pm" or
// "2025-03-14 19:30" into a UTC instant.
type TimeParser struct {
	TimezoneMap map[string]string
	parser      *when.Parser
}

func NewTimeParser() *TimeParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &TimeParser{
		TimezoneMap: map[string]string{
			"GMT":  "Europe/London",
			"BST":  "Europe/London",
			"CET":  "Europe/Paris",
			"CEST": "Europe/Paris",
			"EST":  "America/New_York",
			"EDT":  "America/New_York",
			"PST":  "America/Los_Angeles",
			"PDT":  "America/Los_Angeles",
		},
		parser: w,
	}
}

// Location resolves an abbreviation from the map or an IANA name. Empty input is UTC.
func (tp *TimeParser) Location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "UTC") {
		return time.UTC, nil
	}
	if name, ok := tp.TimezoneMap[strings.ToUpper(tz)]; ok {
		tz = name
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Parse reads input in timezone tz relative to clock and returns it in UTC,
// truncated to the minute. RFC 3339 input keeps its own offset.
func (tp *TimeParser) Parse(input, tz string, clock Clock) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC().Truncate(time.Minute), nil
	}

	loc, err := tp.Location(tz)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return t.UTC().Truncate(time.Minute), nil
		}
	}

	r, err := tp.parser.Parse(strings.ToLower(input), clock.Now().In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse time %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not recognize time format: %s", input)
	}
	return r.Time.UTC().Truncate(time.Minute), nil
}
