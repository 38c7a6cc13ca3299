// AngelaMos | 2026
// clock.go

package core

import (
	"time"
)

// Clock is the only source of wall-clock time for scheduling and
// entitlement logic.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always reports the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At
}
