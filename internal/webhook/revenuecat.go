// AngelaMos | 2026
// revenuecat.go

package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
)

// RevenueCatProvider authenticates notifications by the shared secret
// configured as the webhook Authorization header.
type RevenueCatProvider struct {
	token string
}

func NewRevenueCatProvider(authToken string) *RevenueCatProvider {
	return &RevenueCatProvider{token: authToken}
}

type revenueCatPayload struct {
	APIVersion string          `json:"api_version"`
	Event      revenueCatEvent `json:"event"`
}

type revenueCatEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	AppUserID         string `json:"app_user_id"`
	OriginalAppUserID string `json:"original_app_user_id"`
	ProductID         string `json:"product_id"`
	Store             string `json:"store"`
	ExpirationAtMs    *int64 `json:"expiration_at_ms"`
	EventTimestampMs  int64  `json:"event_timestamp_ms"`
	CancelReason      string `json:"cancel_reason"`
}

func (p *RevenueCatProvider) Name() string {
	return ledger.ProviderRevenueCat
}

func (p *RevenueCatProvider) Verify(header http.Header, body []byte) (*Envelope, error) {
	provided := strings.TrimSpace(header.Get("Authorization"))
	if len(provided) > 7 && strings.EqualFold(provided[:7], "bearer ") {
		provided = strings.TrimSpace(provided[7:])
	}

	if !core.CompareSecret(provided, p.token) {
		return nil, fmt.Errorf("verify revenuecat authorization: %w", core.ErrUnauthorized)
	}

	payload, err := decodeRevenueCat(body)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:       payload.Event.ID,
		Provider: ledger.ProviderRevenueCat,
		Type:     payload.Event.Type,
		Payload:  body,
		Event:    translateRevenueCat(payload.Event),
	}, nil
}

func (p *RevenueCatProvider) Parse(body []byte) (entitlement.Event, error) {
	payload, err := decodeRevenueCat(body)
	if err != nil {
		return nil, err
	}
	return translateRevenueCat(payload.Event), nil
}

func decodeRevenueCat(body []byte) (*revenueCatPayload, error) {
	var payload revenueCatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode revenuecat event: %w", core.ErrInvalidInput)
	}
	if payload.Event.ID == "" || payload.Event.Type == "" {
		return nil, fmt.Errorf("revenuecat event without id or type: %w", core.ErrInvalidInput)
	}
	return &payload, nil
}

func translateRevenueCat(e revenueCatEvent) entitlement.Event {
	userID := e.AppUserID
	if userID == "" || strings.HasPrefix(userID, "$RCAnonymousID:") {
		userID = e.OriginalAppUserID
	}
	target := entitlement.Target{UserID: userID}

	var expires *time.Time
	if e.ExpirationAtMs != nil && *e.ExpirationAtMs > 0 {
		t := time.UnixMilli(*e.ExpirationAtMs).UTC()
		expires = &t
	}

	switch strings.ToUpper(e.Type) {
	case "INITIAL_PURCHASE":
		return entitlement.InitialPurchase{
			Target:    target,
			Platform:  platformFor(e.Store),
			ProductID: e.ProductID,
			ExpiresAt: expires,
		}
	case "RENEWAL", "UNCANCELLATION":
		return entitlement.Renewal{Target: target, ExpiresAt: expires}
	case "CANCELLATION":
		return entitlement.Cancellation{Target: target, Reason: e.CancelReason}
	case "EXPIRATION":
		return entitlement.Expiration{Target: target}
	case "BILLING_ISSUE":
		return entitlement.BillingIssue{Target: target}
	}
	return entitlement.Unknown{Target: target, RawType: e.Type}
}

func platformFor(store string) string {
	switch strings.ToUpper(store) {
	case "APP_STORE", "MAC_APP_STORE":
		return "ios"
	case "PLAY_STORE":
		return "android"
	case "STRIPE":
		return "web"
	case "":
		return ""
	}
	return strings.ToLower(store)
}

var _ Provider = (*RevenueCatProvider)(nil)
