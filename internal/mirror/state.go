// AngelaMos | 2026
// state.go

// Package mirror keeps a client-side copy of the entitlement snapshot so a
// UI can render access and the next due instant while offline.
//
// The server is authoritative. A locally computed due instant is only used
// until the server has established the weekly cadence.
package mirror

import (
	"time"

	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

type State struct {
	Status         entitlement.Status `json:"status"`
	HasAccess      bool               `json:"has_access"`
	TrialStartedAt *time.Time         `json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentWeek    *int               `json:"current_week,omitempty"`
	NextDueAt      *time.Time         `json:"next_due_at,omitempty"`
	Timezone       string             `json:"timezone,omitempty"`
	LastResult     *score.Snapshot    `json:"last_result,omitempty"`

	// ServerEstablished latches once the server has supplied a week number
	// or a due instant.
	ServerEstablished bool `json:"server_established"`
	// FallbackDue marks NextDueAt as computed locally.
	FallbackDue bool      `json:"fallback_due"`
	SyncedAt    time.Time `json:"synced_at"`
}

// IsDue reports whether the next check-in has unlocked at now.
func (s State) IsDue(now time.Time) bool {
	return s.NextDueAt != nil && !now.Before(*s.NextDueAt)
}
