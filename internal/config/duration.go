package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDuration   = errors.New("empty duration")
	ErrInvalidDuration = errors.New("invalid duration")
)

var durationPart = regexp.MustCompile(`(\d+)\s*(d|h|m|s)`)

var durationUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ParseDuration parses human-friendly durations like "15d", "1d12h", "90m"
// as well as anything time.ParseDuration accepts.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var total time.Duration
	rest := s
	for _, m := range durationPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
		total += time.Duration(n) * durationUnits[m[2]]
		rest = strings.Replace(rest, m[0], "", 1)
	}
	// Every character must belong to a number-unit pair.
	if strings.TrimSpace(rest) != "" {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
	}
	return total, nil
}

// Duration is a time.Duration read from the environment with day support.
type Duration time.Duration

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	v, err := ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
