// AngelaMos | 2026
// schedule.go

// Package schedule computes when a user's next weekly check-in unlocks.
//
// Due instants are pinned to a local wall-clock hour in the user's IANA
// timezone and persisted as absolute UTC instants. Nothing in this package
// reads the clock: every computation is a function of its arguments.
package schedule

import (
	"log/slog"
	"strings"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/config"
)

const (
	DefaultDueHour      = 19
	DefaultIntervalDays = 7
	DefaultTimezone     = "UTC"
)

type Policy struct {
	DueHour         int
	IntervalDays    int
	DefaultTimezone string
	Logger          *slog.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		DueHour:         DefaultDueHour,
		IntervalDays:    DefaultIntervalDays,
		DefaultTimezone: DefaultTimezone,
	}
}

func NewPolicy(cfg config.CadenceConfig, logger *slog.Logger) Policy {
	p := Policy{
		DueHour:         cfg.DueHour,
		IntervalDays:    cfg.IntervalDays,
		DefaultTimezone: cfg.DefaultTimezone,
		Logger:          logger,
	}
	if p.IntervalDays < 1 {
		p.IntervalDays = DefaultIntervalDays
	}
	if p.DueHour < 0 || p.DueHour > 23 {
		p.DueHour = DefaultDueHour
	}
	return p
}

// NextDueInstant returns DueHour:00 local time, IntervalDays calendar days
// after the local date of baseline. The UTC offset is resolved at the target
// moment, so a DST transition between baseline and target still lands on the
// configured local hour.
//
// An empty or unknown timezone falls back to DefaultTimezone (then UTC)
// and logs a warning; it never fails.
func (p Policy) NextDueInstant(baseline time.Time, timezone string) time.Time {
	loc := p.location(timezone)

	year, month, day := baseline.In(loc).Date()
	target := time.Date(year, month, day+p.intervalDays(), p.DueHour, 0, 0, 0, loc)

	return target.UTC()
}

func (p Policy) intervalDays() int {
	if p.IntervalDays < 1 {
		return DefaultIntervalDays
	}
	return p.IntervalDays
}

func (p Policy) location(timezone string) *time.Location {
	if loc, ok := ResolveLocation(timezone); ok {
		return loc
	}

	p.logger().Warn("unresolvable timezone, using default",
		"timezone", timezone,
		"default", p.DefaultTimezone,
	)

	if loc, ok := ResolveLocation(p.DefaultTimezone); ok {
		return loc
	}
	return time.UTC
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ResolveLocation loads an IANA timezone. "Local" is rejected because it
// depends on the host.
func ResolveLocation(timezone string) (*time.Location, bool) {
	tz := strings.TrimSpace(timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return nil, false
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, false
	}
	return loc, true
}

// NormalizeTimezone returns tz when it resolves, otherwise fallback.
func NormalizeTimezone(tz, fallback string) string {
	if _, ok := ResolveLocation(tz); ok {
		return strings.TrimSpace(tz)
	}
	return fallback
}

// NextDueInstant applies the default 7-day, 19:00 local policy.
func NextDueInstant(baseline time.Time, timezone string) time.Time {
	return DefaultPolicy().NextDueInstant(baseline, timezone)
}
