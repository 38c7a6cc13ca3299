// AngelaMos | 2026
// dto.go

package profile

import (
	"encoding/json"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

type EnsureProfileRequest struct {
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

type UpdateTimezoneRequest struct {
	Timezone string `json:"timezone" validate:"required,max=64"`
}

type StartTrialRequest struct {
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

type IntakeRequest struct {
	Answers json.RawMessage `json:"answers" validate:"required"`
}

type DerivedPreferences struct {
	PrimaryGoal string `json:"primary_goal,omitempty"`
	FocusArea   string `json:"focus_area,omitempty"`
}

func (d DerivedPreferences) IsEmpty() bool {
	return d.PrimaryGoal == "" && d.FocusArea == ""
}

// EntitlementSnapshot is everything the client needs to render access and
// cadence state in one read.
type EntitlementSnapshot struct {
	Status             entitlement.Status `json:"status"`
	HasAccess          bool               `json:"has_access"`
	EverSubscribed     bool               `json:"ever_subscribed"`
	TrialStartedAt     *time.Time         `json:"trial_started_at"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at"`
	CurrentWeek        *int               `json:"current_week"`
	NextDueAt          *time.Time         `json:"next_due_at"`
	Timezone           string             `json:"timezone"`
	LastResult         *score.Snapshot    `json:"last_result"`
	DerivedPreferences DerivedPreferences `json:"derived_preferences"`
}

type IntakeResponse struct {
	Result             score.Snapshot     `json:"result"`
	DerivedPreferences DerivedPreferences `json:"derived_preferences"`
}

func toSnapshot(p *Profile, now time.Time, defaultTZ string) *EntitlementSnapshot {
	return &EntitlementSnapshot{
		Status:             p.EntitlementStatus,
		HasAccess:          p.HasAccess(now),
		EverSubscribed:     p.EverSubscribed,
		TrialStartedAt:     p.TrialStartedAt,
		TrialEndsAt:        p.TrialEndsAt,
		CurrentWeek:        p.CurrentWeekNumber,
		NextDueAt:          p.NextWeekDueAt,
		Timezone:           p.TimezoneOr(defaultTZ),
		LastResult:         p.LastResult,
		DerivedPreferences: p.Preferences(),
	}
}
