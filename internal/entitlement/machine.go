// AngelaMos | 2026
// machine.go

package entitlement

import (
	"strings"
	"time"
)

// State is the entitlement-relevant slice of a profile.
type State struct {
	Status            Status
	EverSubscribed    bool
	Platform          string
	ProductID         string
	ExpiresAt         *time.Time
	BillingCustomerID string
	CurrentWeek       *int
	NextDueAt         *time.Time
	Timezone          string
}

// Cadence is the due-date policy a transition may need when it starts a
// user's weekly schedule.
type Cadence interface {
	NextDueInstant(baseline time.Time, timezone string) time.Time
}

type Decision struct {
	Next    State
	Changed bool
	// Note is set for transitions that only produce a log line.
	Note string
	Warn bool
	// CadenceStarted is true when the transition set the first week and due.
	CadenceStarted bool
}

// Transition computes the next state for ev. It performs no IO and reads no
// clock; applying the same event twice yields the same state.
func Transition(state State, ev Event, now time.Time, cadence Cadence) Decision {
	next := state

	switch e := ev.(type) {
	case InitialPurchase:
		next.Status = StatusActive
		next.EverSubscribed = true
		if e.Platform != "" {
			next.Platform = e.Platform
		}
		if e.ProductID != "" {
			next.ProductID = e.ProductID
		}
		if e.ExpiresAt != nil {
			next.ExpiresAt = cloneTime(e.ExpiresAt)
		}
		setCustomer(&next, e.Target)

	case Renewal:
		next.Status = StatusActive
		if e.ExpiresAt != nil {
			next.ExpiresAt = cloneTime(e.ExpiresAt)
		}

	case Cancellation:
		note := "subscription cancellation received, access continues until expiration"
		if e.Reason != "" {
			note += ": " + e.Reason
		}
		return decide(state, next, note, false, false)

	case Expiration:
		next.Status = StatusCanceled

	case BillingIssue:
		next.Status = StatusGrace

	case CheckoutCompleted:
		next.Status = StatusActive
		next.EverSubscribed = true
		setCustomer(&next, e.Target)
		started := startCadence(&next, now, cadence)
		return decide(state, next, "", false, started)

	case SubscriptionUpdated:
		status, ok := providerStatus(e.ProviderStatus)
		if !ok {
			return decide(state, state,
				"unhandled subscription status "+quote(e.ProviderStatus), true, false)
		}
		next.Status = status
		if e.ExpiresAt != nil {
			next.ExpiresAt = cloneTime(e.ExpiresAt)
		}

	case Unknown:
		return decide(state, state, "unhandled event type "+quote(e.RawType), true, false)

	default:
		return decide(state, state, "unhandled event", true, false)
	}

	return decide(state, next, "", false, false)
}

func decide(prev, next State, note string, warn, started bool) Decision {
	return Decision{
		Next:           next,
		Changed:        !prev.Equal(next),
		Note:           note,
		Warn:           warn,
		CadenceStarted: started,
	}
}

func providerStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing", "active":
		return StatusActive, true
	case "past_due", "unpaid", "incomplete":
		return StatusGrace, true
	case "canceled", "cancelled", "incomplete_expired":
		return StatusCanceled, true
	}
	return "", false
}

func startCadence(s *State, now time.Time, cadence Cadence) bool {
	if s.CurrentWeek != nil || s.NextDueAt != nil || cadence == nil {
		return false
	}
	week := 1
	due := cadence.NextDueInstant(now, s.Timezone)
	s.CurrentWeek = &week
	s.NextDueAt = &due
	return true
}

func setCustomer(s *State, t Target) {
	if t.CustomerID != "" {
		s.BillingCustomerID = t.CustomerID
	}
}

// Equal compares states by value, including pointed-to fields.
func (s State) Equal(o State) bool {
	return s.Status == o.Status &&
		s.EverSubscribed == o.EverSubscribed &&
		s.Platform == o.Platform &&
		s.ProductID == o.ProductID &&
		s.BillingCustomerID == o.BillingCustomerID &&
		s.Timezone == o.Timezone &&
		equalTime(s.ExpiresAt, o.ExpiresAt) &&
		equalTime(s.NextDueAt, o.NextDueAt) &&
		equalInt(s.CurrentWeek, o.CurrentWeek)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneTime(t *time.Time) *time.Time {
	v := *t
	return &v
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
