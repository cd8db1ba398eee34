package markettime

import (
	"strings"
	"time"

	"boxscout/pkg/errors"
)

// Session labels
const (
	SessionRTH = "RTH"
	SessionAH  = "AH"
)

var (
	rthOpen  = 9*60 + 30
	rthClose = 16 * 60
)

// Window is an allowed time-of-day interval, inclusive on both ends.
// Bounds are minutes since midnight in the configured timezone.
type Window struct {
	Start int
	End   int
}

// Contains reports whether the local time-of-day falls inside the window
func (w Window) Contains(t time.Time) bool {
	m := minuteOfDay(t)
	return w.Start <= m && m <= w.End
}

// ParseWindows parses "HH:MM-HH:MM,HH:MM-HH:MM" into windows
func ParseWindows(spec string) ([]Window, error) {
	var windows []Window
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, errors.NewValidationError("allowed_windows", "expected HH:MM-HH:MM", part)
		}
		start, err := parseClock(bounds[0])
		if err != nil {
			return nil, err
		}
		end, err := parseClock(bounds[1])
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, errors.NewValidationError("allowed_windows", "end before start", part)
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	if len(windows) == 0 {
		return nil, errors.NewValidationError("allowed_windows", "no windows configured", spec)
	}
	return windows, nil
}

// InAnyWindow reports whether t falls in at least one window
func InAnyWindow(t time.Time, windows []Window) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// IsRTH reports whether t falls inside the regular trading session,
// 09:30-16:00 inclusive, in t's location
func IsRTH(t time.Time) bool {
	m := minuteOfDay(t)
	return rthOpen <= m && m <= rthClose
}

// Session returns the session label for t
func Session(t time.Time) string {
	if IsRTH(t) {
		return SessionRTH
	}
	return SessionAH
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidInput, "bad clock value %q", s)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
