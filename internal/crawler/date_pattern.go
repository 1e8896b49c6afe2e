package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrNoDatePattern is returned when no matcher recognizes a cell label
var ErrNoDatePattern = errors.New("no date pattern matched")

// DateMatcher turns one label format into an AvailableDate
type DateMatcher struct {
	Name    string
	Pattern *regexp.Regexp
	// Build receives the submatches of Pattern; missing parts default from rc
	Build func(m []string, rc RunContext) (AvailableDate, error)
}

// DefaultDateMatchers is the fallback chain tried against every bookable cell label.
// Richer formats come first; the first matcher that matches wins.
var DefaultDateMatchers = []DateMatcher{
	{
		Name:    "year-month-day",
		Pattern: regexp.MustCompile(`(\d{4})\s*(?:년|[-./])\s*(\d{1,2})\s*(?:월|[-./])\s*(\d{1,2})`),
		Build: func(m []string, rc RunContext) (AvailableDate, error) {
			return newDateFromParts(m[1], m[2], m[3])
		},
	},
	{
		Name:    "month-day",
		Pattern: regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`),
		Build: func(m []string, rc RunContext) (AvailableDate, error) {
			return newDateFromParts(strconv.Itoa(rc.Year), m[1], m[2])
		},
	},
	{
		Name:    "day",
		Pattern: regexp.MustCompile(`(\d{1,2})\s*일`),
		Build:   buildDayOnly,
	},
	{
		Name:    "bare-day",
		Pattern: regexp.MustCompile(`^\s*(\d{1,2})\s*$`),
		Build:   buildDayOnly,
	},
}

// MatchDate runs the matchers in order and returns the first match with the matcher's name
func MatchDate(label string, rc RunContext, matchers []DateMatcher) (AvailableDate, string, error) {
	for _, matcher := range matchers {
		m := matcher.Pattern.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		date, err := matcher.Build(m, rc)
		if err != nil {
			return AvailableDate{}, matcher.Name, fmt.Errorf("label %q: %w", label, err)
		}
		return date, matcher.Name, nil
	}
	return AvailableDate{}, "", fmt.Errorf("label %q: %w", label, ErrNoDatePattern)
}

func buildDayOnly(m []string, rc RunContext) (AvailableDate, error) {
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return AvailableDate{}, err
	}
	return NewAvailableDate(rc.Year, rc.Month, day)
}

func newDateFromParts(year, month, day string) (AvailableDate, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return AvailableDate{}, err
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return AvailableDate{}, err
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return AvailableDate{}, err
	}
	return NewAvailableDate(y, time.Month(m), d)
}
