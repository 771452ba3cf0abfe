package repository

import (
	"fmt"
	"time"

	"PairPulse/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s  Timeframe = "1s"
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1s:  time.Second,
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe is the strict variant of NormalizeTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !IsValidTimeframe(tf) {
		return "", models.NewValidationError("timeframe", fmt.Sprintf("unsupported timeframe %q", s))
	}
	return tf, nil
}

// ParseTimeframes parses a configured list, rejecting duplicates.
func ParseTimeframes(raw []string) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(raw))
	seen := make(map[Timeframe]bool, len(raw))
	for _, s := range raw {
		tf, err := ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		if seen[tf] {
			return nil, models.NewValidationError("timeframe", fmt.Sprintf("duplicate timeframe %q", s))
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out, nil
}

func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }

func (tf Timeframe) String() string { return string(tf) }

// Bucket floors ts to the start of its timeframe interval, aligned to the
// Unix epoch, in UTC.
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	d := tf.Duration().Nanoseconds()
	n := ts.UnixNano()
	b := n - n%d
	if n < 0 && n%d != 0 {
		b -= d
	}
	return time.Unix(0, b).UTC()
}
