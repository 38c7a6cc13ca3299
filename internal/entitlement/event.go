// AngelaMos | 2026
// event.go

package entitlement

import (
	"time"
)

type Kind string

const (
	KindInitialPurchase     Kind = "initial_purchase"
	KindRenewal             Kind = "renewal"
	KindCancellation        Kind = "cancellation"
	KindExpiration          Kind = "expiration"
	KindBillingIssue        Kind = "billing_issue"
	KindCheckoutCompleted   Kind = "checkout_completed"
	KindSubscriptionUpdated Kind = "subscription_updated"
	KindUnknown             Kind = "unknown"
)

// Target identifies the user an event is about. Providers send either our
// user id, their customer reference, or both.
type Target struct {
	UserID     string
	CustomerID string
}

func (t Target) IsZero() bool {
	return t.UserID == "" && t.CustomerID == ""
}

// Event is a lifecycle notification already translated from a provider
// payload. The set of implementations is closed; anything the intake does
// not recognise arrives as Unknown.
type Event interface {
	Kind() Kind
	Ref() Target
	isEvent()
}

type InitialPurchase struct {
	Target
	Platform  string
	ProductID string
	ExpiresAt *time.Time
}

type Renewal struct {
	Target
	ExpiresAt *time.Time
}

type Cancellation struct {
	Target
	Reason string
}

type Expiration struct {
	Target
}

type BillingIssue struct {
	Target
}

// CheckoutCompleted is the one-time confirmation of a redirect checkout.
type CheckoutCompleted struct {
	Target
}

type SubscriptionUpdated struct {
	Target
	ProviderStatus string
	ExpiresAt      *time.Time
}

type Unknown struct {
	Target
	RawType string
}

func (e InitialPurchase) Kind() Kind     { return KindInitialPurchase }
func (e Renewal) Kind() Kind             { return KindRenewal }
func (e Cancellation) Kind() Kind        { return KindCancellation }
func (e Expiration) Kind() Kind          { return KindExpiration }
func (e BillingIssue) Kind() Kind        { return KindBillingIssue }
func (e CheckoutCompleted) Kind() Kind   { return KindCheckoutCompleted }
func (e SubscriptionUpdated) Kind() Kind { return KindSubscriptionUpdated }
func (e Unknown) Kind() Kind             { return KindUnknown }

func (e InitialPurchase) Ref() Target     { return e.Target }
func (e Renewal) Ref() Target             { return e.Target }
func (e Cancellation) Ref() Target        { return e.Target }
func (e Expiration) Ref() Target          { return e.Target }
func (e BillingIssue) Ref() Target        { return e.Target }
func (e CheckoutCompleted) Ref() Target   { return e.Target }
func (e SubscriptionUpdated) Ref() Target { return e.Target }
func (e Unknown) Ref() Target             { return e.Target }

func (InitialPurchase) isEvent()     {}
func (Renewal) isEvent()             {}
func (Cancellation) isEvent()        {}
func (Expiration) isEvent()          {}
func (BillingIssue) isEvent()        {}
func (CheckoutCompleted) isEvent()   {}
func (SubscriptionUpdated) isEvent() {}
func (Unknown) isEvent()             {}
