// AngelaMos | 2026
// stripe.go

package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeProvider struct {
	secret string
}

func NewStripeProvider(webhookSecret string) *StripeProvider {
	return &StripeProvider{secret: webhookSecret}
}

func (p *StripeProvider) Name() string {
	return ledger.ProviderStripe
}

func (p *StripeProvider) Verify(header http.Header, body []byte) (*Envelope, error) {
	if p.secret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured: %w", core.ErrUnauthorized)
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		header.Get(stripeSignatureHeader),
		p.secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("verify stripe signature: %w: %w", core.ErrUnauthorized, err)
	}

	if event.ID == "" {
		return nil, fmt.Errorf("stripe event without id: %w", core.ErrInvalidInput)
	}

	env := &Envelope{
		ID:       event.ID,
		Provider: ledger.ProviderStripe,
		Type:     string(event.Type),
		Payload:  body,
	}
	env.Event, env.DecodeErr = translateStripe(event)
	return env, nil
}

func (p *StripeProvider) Parse(body []byte) (entitlement.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", core.ErrInvalidInput)
	}
	return translateStripe(event)
}

func translateStripe(event stripe.Event) (entitlement.Event, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("stripe event without id: %w", core.ErrInvalidInput)
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", core.ErrInvalidInput)
		}
		userID := sess.ClientReferenceID
		if userID == "" {
			userID = sess.Metadata["user_id"]
		}
		return entitlement.CheckoutCompleted{
			Target: entitlement.Target{UserID: userID, CustomerID: customerID(sess.Customer)},
		}, nil

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", core.ErrInvalidInput)
		}

		status := string(sub.Status)
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			status = string(stripe.SubscriptionStatusCanceled)
		}

		var expires *time.Time
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			expires = &t
		}

		return entitlement.SubscriptionUpdated{
			Target: entitlement.Target{
				UserID:     sub.Metadata["user_id"],
				CustomerID: customerID(sub.Customer),
			},
			ProviderStatus: status,
			ExpiresAt:      expires,
		}, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", core.ErrInvalidInput)
		}
		return entitlement.BillingIssue{
			Target: entitlement.Target{CustomerID: customerID(inv.Customer)},
		}, nil
	}

	return entitlement.Unknown{RawType: string(event.Type)}, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

var _ Provider = (*StripeProvider)(nil)
