package http

import (
	"time"

	xutil "PairPulse/pkg/util"
)

// ParseTime accepts RFC3339, unix seconds and unix milliseconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// SplitCSV splits a comma separated query value.
func SplitCSV(s string) []string { return xutil.SplitCSV(s) }
