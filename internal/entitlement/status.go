// AngelaMos | 2026
// status.go

package entitlement

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type Status string

const (
	StatusNone     Status = "none"
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusGrace    Status = "grace"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusTrial, StatusActive, StatusGrace, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// HasAccess reports whether the status grants paid features at now. Trials
// only count inside their window.
func (s Status) HasAccess(trialEndsAt *time.Time, now time.Time) bool {
	switch s {
	case StatusActive, StatusGrace, StatusPastDue:
		return true
	case StatusTrial:
		return trialEndsAt == nil || now.Before(*trialEndsAt)
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Value() (driver.Value, error) {
	if s == "" {
		return string(StatusNone), nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("invalid entitlement status %q", string(s))
	}
	return string(s), nil
}

func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = StatusNone
	case string:
		*s = Status(v)
	case []byte:
		*s = Status(v)
	default:
		return fmt.Errorf("scan entitlement status: unsupported type %T", src)
	}

	if !s.Valid() {
		return fmt.Errorf("scan entitlement status: invalid value %q", string(*s))
	}
	return nil
}
