// AngelaMos | 2026
// provider_test.go

package webhook_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	intake "github.com/carterperez-dev/cadence-api/internal/webhook"
)

func signStripe(t *testing.T, payload string) http.Header {
	t.Helper()

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  secret,
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

const subscriptionUpdated = `{
  "id": "evt_sub_1",
  "object": "event",
  "api_version": "2024-09-30.acacia",
  "type": "customer.subscription.updated",
  "data": {"object": {
    "id": "sub_1",
    "object": "subscription",
    "customer": "cus_Q1w2E3r4",
    "status": "past_due",
    "current_period_end": 1717243200,
    "metadata": {"user_id": "4f1c2a9e-8d4b-4a57-9d62-0a3b5c7e9f10"}
  }}
}`

func TestStripeProvider_VerifiesAndTranslates(t *testing.T) {
	p := intake.NewStripeProvider(secret)
	body := []byte(subscriptionUpdated)

	env, err := p.Verify(signStripe(t, subscriptionUpdated), body)
	require.NoError(t, err)

	assert.Equal(t, "evt_sub_1", env.ID)
	assert.Equal(t, "stripe", env.Provider)
	assert.Equal(t, "customer.subscription.updated", env.Type)
	assert.Equal(t, body, env.Payload)

	ev, ok := env.Event.(entitlement.SubscriptionUpdated)
	require.True(t, ok, "got %T", env.Event)
	assert.Equal(t, "past_due", ev.ProviderStatus)
	assert.Equal(t, customerID, ev.CustomerID)
	assert.Equal(t, userID, ev.UserID)
	require.NotNil(t, ev.ExpiresAt)
	assert.True(t, time.Unix(1717243200, 0).Equal(*ev.ExpiresAt))
}

func TestStripeProvider_RejectsBadSignature(t *testing.T) {
	p := intake.NewStripeProvider(secret)

	h := http.Header{}
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")
	_, err := p.Verify(h, []byte(subscriptionUpdated))
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = p.Verify(http.Header{}, []byte(subscriptionUpdated))
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = intake.NewStripeProvider("").Verify(signStripe(t, subscriptionUpdated), []byte(subscriptionUpdated))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestStripeProvider_VerifyKeepsUndecodableEvent(t *testing.T) {
	p := intake.NewStripeProvider(secret)
	body := `{"id":"evt_bad_2","object":"event","type":"invoice.payment_failed",` +
		`"data":{"object":{"id":"in_1","object":"invoice","customer":7}}}`

	env, err := p.Verify(signStripe(t, body), []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "evt_bad_2", env.ID)
	assert.Nil(t, env.Event)
	assert.ErrorIs(t, env.DecodeErr, core.ErrInvalidInput)
	assert.Equal(t, []byte(body), env.Payload)
}

func TestStripeProvider_Parse(t *testing.T) {
	p := intake.NewStripeProvider(secret)

	tests := []struct {
		name string
		body string
		want entitlement.Event
	}{
		{
			name: "checkout completed",
			body: `{"id":"evt_c","type":"checkout.session.completed","data":{"object":` +
				`{"id":"cs_1","object":"checkout.session","client_reference_id":"u1","customer":"cus_9"}}}`,
			want: entitlement.CheckoutCompleted{Target: entitlement.Target{UserID: "u1", CustomerID: "cus_9"}},
		},
		{
			name: "checkout with metadata user",
			body: `{"id":"evt_m","type":"checkout.session.completed","data":{"object":` +
				`{"id":"cs_2","object":"checkout.session","metadata":{"user_id":"u2"}}}}`,
			want: entitlement.CheckoutCompleted{Target: entitlement.Target{UserID: "u2"}},
		},
		{
			name: "subscription deleted",
			body: `{"id":"evt_d","type":"customer.subscription.deleted","data":{"object":` +
				`{"id":"sub_2","object":"subscription","customer":"cus_9","status":"active"}}}`,
			want: entitlement.SubscriptionUpdated{
				Target:         entitlement.Target{CustomerID: "cus_9"},
				ProviderStatus: "canceled",
			},
		},
		{
			name: "payment failed",
			body: `{"id":"evt_i","type":"invoice.payment_failed","data":{"object":` +
				`{"id":"in_1","object":"invoice","customer":"cus_9"}}}`,
			want: entitlement.BillingIssue{Target: entitlement.Target{CustomerID: "cus_9"}},
		},
		{
			name: "unrelated type",
			body: `{"id":"evt_u","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`,
			want: entitlement.Unknown{RawType: "charge.refunded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}

	_, err := p.Parse([]byte(`{"type":"invoice.payment_failed"}`))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRevenueCatProvider_Verify(t *testing.T) {
	p := intake.NewRevenueCatProvider(rcToken)
	body := []byte(`{"api_version":"1.0","event":{"id":"rc_evt_1","type":"INITIAL_PURCHASE",` +
		`"app_user_id":"u1","product_id":"cadence.weekly","store":"PLAY_STORE",` +
		`"expiration_at_ms":1717243200000}}`)

	for _, header := range []string{rcToken, "Bearer " + rcToken} {
		h := http.Header{}
		h.Set("Authorization", header)

		env, err := p.Verify(h, body)
		require.NoError(t, err)
		assert.Equal(t, "rc_evt_1", env.ID)
		assert.Equal(t, "revenuecat", env.Provider)

		ev, ok := env.Event.(entitlement.InitialPurchase)
		require.True(t, ok)
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "android", ev.Platform)
		assert.Equal(t, "cadence.weekly", ev.ProductID)
		require.NotNil(t, ev.ExpiresAt)
		assert.True(t, time.UnixMilli(1717243200000).Equal(*ev.ExpiresAt))
	}

	bad := http.Header{}
	bad.Set("Authorization", "wrong")
	_, err := p.Verify(bad, body)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = p.Verify(http.Header{}, body)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	ok := http.Header{}
	ok.Set("Authorization", rcToken)
	_, err = p.Verify(ok, []byte(`{"event":{"type":"RENEWAL"}}`))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRevenueCatProvider_ParseTypes(t *testing.T) {
	p := intake.NewRevenueCatProvider(rcToken)

	tests := []struct {
		body string
		want entitlement.Kind
	}{
		{`{"event":{"id":"1","type":"RENEWAL","app_user_id":"u"}}`, entitlement.KindRenewal},
		{`{"event":{"id":"2","type":"UNCANCELLATION","app_user_id":"u"}}`, entitlement.KindRenewal},
		{`{"event":{"id":"3","type":"CANCELLATION","app_user_id":"u","cancel_reason":"UNSUBSCRIBE"}}`, entitlement.KindCancellation},
		{`{"event":{"id":"4","type":"EXPIRATION","app_user_id":"u"}}`, entitlement.KindExpiration},
		{`{"event":{"id":"5","type":"BILLING_ISSUE","app_user_id":"u"}}`, entitlement.KindBillingIssue},
		{`{"event":{"id":"6","type":"TRANSFER","app_user_id":"u"}}`, entitlement.KindUnknown},
	}

	for _, tt := range tests {
		ev, err := p.Parse([]byte(tt.body))
		require.NoError(t, err)
		assert.Equal(t, tt.want, ev.Kind(), tt.body)
		assert.Equal(t, "u", ev.Ref().UserID)
	}
}

func TestRevenueCatProvider_AnonymousFallsBackToOriginalID(t *testing.T) {
	ev, err := intake.NewRevenueCatProvider(rcToken).Parse([]byte(
		`{"event":{"id":"1","type":"RENEWAL","app_user_id":"$RCAnonymousID:abc","original_app_user_id":"u9"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u9", ev.Ref().UserID)
}
