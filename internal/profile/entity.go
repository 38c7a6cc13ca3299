// AngelaMos | 2026
// entity.go

package profile

import (
	"time"

	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

// Profile is the per-user record the entitlement machine and the check-in
// orchestrator both write to. Rows are locked FOR UPDATE before mutation.
type Profile struct {
	UserID               string             `db:"user_id"`
	EntitlementStatus    entitlement.Status `db:"entitlement_status"`
	TrialStartedAt       *time.Time         `db:"trial_started_at"`
	TrialEndsAt          *time.Time         `db:"trial_ends_at"`
	EverSubscribed       bool               `db:"ever_subscribed"`
	Platform             *string            `db:"platform"`
	ProductID            *string            `db:"product_id"`
	EntitlementExpiresAt *time.Time         `db:"entitlement_expires_at"`
	BillingCustomerID    *string            `db:"billing_customer_id"`
	CurrentWeekNumber    *int               `db:"current_week_number"`
	NextWeekDueAt        *time.Time         `db:"next_week_due_at"`
	Timezone             *string            `db:"timezone"`
	LastResult           *score.Snapshot    `db:"last_result"`
	PrimaryGoal          *string            `db:"primary_goal"`
	FocusArea            *string            `db:"focus_area"`
	CreatedAt            time.Time          `db:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at"`
}

// New returns an unsaved profile with no entitlement.
func New(userID, timezone string) *Profile {
	p := &Profile{
		UserID:            userID,
		EntitlementStatus: entitlement.StatusNone,
	}
	if timezone != "" {
		p.Timezone = &timezone
	}
	return p
}

// NewWithTrialDefaults is used when a lifecycle event arrives for a user
// whose profile does not exist yet.
func NewWithTrialDefaults(userID string, now time.Time, trialLength time.Duration) *Profile {
	started := now.UTC()
	ends := started.Add(trialLength)

	p := New(userID, "")
	p.EntitlementStatus = entitlement.StatusTrial
	p.TrialStartedAt = &started
	p.TrialEndsAt = &ends
	return p
}

func (p *Profile) TimezoneOr(fallback string) string {
	if p.Timezone != nil && *p.Timezone != "" {
		return *p.Timezone
	}
	return fallback
}

func (p *Profile) HasAccess(now time.Time) bool {
	return p.EntitlementStatus.HasAccess(p.TrialEndsAt, now)
}

// HasPreferences reports whether both derived preferences are set.
func (p *Profile) HasPreferences() bool {
	return deref(p.PrimaryGoal) != "" && deref(p.FocusArea) != ""
}

func (p *Profile) Preferences() DerivedPreferences {
	return DerivedPreferences{
		PrimaryGoal: deref(p.PrimaryGoal),
		FocusArea:   deref(p.FocusArea),
	}
}

func (p *Profile) EntitlementState() entitlement.State {
	return entitlement.State{
		Status:            p.EntitlementStatus,
		EverSubscribed:    p.EverSubscribed,
		Platform:          deref(p.Platform),
		ProductID:         deref(p.ProductID),
		ExpiresAt:         p.EntitlementExpiresAt,
		BillingCustomerID: deref(p.BillingCustomerID),
		CurrentWeek:       p.CurrentWeekNumber,
		NextDueAt:         p.NextWeekDueAt,
		Timezone:          deref(p.Timezone),
	}
}

// ApplyEntitlement copies a state machine result back onto the profile.
// Timezone is owned by the profile and never overwritten here.
func (p *Profile) ApplyEntitlement(s entitlement.State) {
	p.EntitlementStatus = s.Status
	p.EverSubscribed = s.EverSubscribed
	p.Platform = optional(s.Platform)
	p.ProductID = optional(s.ProductID)
	p.EntitlementExpiresAt = s.ExpiresAt
	p.BillingCustomerID = optional(s.BillingCustomerID)
	p.CurrentWeekNumber = s.CurrentWeek
	p.NextWeekDueAt = s.NextDueAt
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
