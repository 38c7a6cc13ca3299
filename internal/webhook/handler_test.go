// AngelaMos | 2026
// handler_test.go

package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/profile"
	"github.com/carterperez-dev/cadence-api/internal/webhook"
)

func newRouter(f *fixture, maxBody int64) http.Handler {
	r := chi.NewRouter()
	webhook.NewHandler(f.svc, maxBody).RegisterRoutes(r)
	return r
}

func post(h http.Handler, path string, header http.Header, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out))
	return out
}

func TestReceive_StripeSignedDelivery(t *testing.T) {
	seed := profile.New(userID, "")
	seed.EntitlementStatus = entitlement.StatusActive
	f := newFixture(t, seed)
	h := newRouter(f, 0)

	rec := post(h, "/webhooks/stripe", signStripe(t, subscriptionUpdated), subscriptionUpdated)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data, ok := decode(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "evt_sub_1", data["event_id"])
	assert.Equal(t, string(webhook.OutcomeApplied), data["outcome"])
	assert.Equal(t, entitlement.StatusGrace, f.profiles.Snapshot(userID).EntitlementStatus)

	rec = post(h, "/webhooks/stripe", signStripe(t, subscriptionUpdated), subscriptionUpdated)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(webhook.OutcomeDuplicate), data["outcome"])
	assert.Equal(t, 1, f.ledger.Len())
}

func TestReceive_BadSignatureWritesNothing(t *testing.T) {
	f := newFixture(t, profile.New(userID, ""))
	h := newRouter(f, 0)

	header := http.Header{}
	header.Set("Stripe-Signature", "t=1,v1=00")
	rec := post(h, "/webhooks/stripe", header, subscriptionUpdated)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, "/webhooks/revenuecat", http.Header{}, `{"event":{"id":"x","type":"RENEWAL"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, f.ledger.Len())
}

func TestReceive_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, 0)

	header := http.Header{}
	header.Set("Authorization", rcToken)
	rec := post(h, "/webhooks/revenuecat", header, `{"event":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.ledger.Len())
}

func TestReceive_SignedStripeWithUndecodableDataIsRecordedAsFailed(t *testing.T) {
	f := newFixture(t, profile.New(userID, ""))
	h := newRouter(f, 0)
	body := `{"id":"evt_bad_1","object":"event","type":"customer.subscription.updated",` +
		`"data":{"object":{"id":"sub_1","object":"subscription","status":5}}}`

	rec := post(h, "/webhooks/stripe", signStripe(t, body), body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(webhook.OutcomeFailed), data["outcome"])

	ev, err := f.ledger.Get(context.Background(), "evt_bad_1")
	require.NoError(t, err)
	assert.False(t, ev.IsProcessed())
	require.NotNil(t, ev.LastError)
	assert.Contains(t, *ev.LastError, "decode subscription")

	rec = post(h, "/webhooks/stripe", signStripe(t, body), body)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(webhook.OutcomeDuplicate), data["outcome"])
	assert.Equal(t, 1, f.ledger.Len())
}

func TestReceive_LedgerUnavailable(t *testing.T) {
	f := newFixture(t, profile.New(userID, ""))
	f.ledger.RecordErr = fmt.Errorf("record event: %w", core.ErrRetryable)
	h := newRouter(f, 0)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+rcToken)
	rec := post(h, "/webhooks/revenuecat", header,
		`{"event":{"id":"rc_1","type":"RENEWAL","app_user_id":"`+userID+`"}}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errBody, ok := decode(t, rec)["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RETRYABLE", errBody["code"])
}

func TestReceive_UnresolvableStillAcknowledged(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, 0)

	header := http.Header{}
	header.Set("Authorization", rcToken)
	rec := post(h, "/webhooks/revenuecat", header,
		`{"event":{"id":"rc_2","type":"EXPIRATION","app_user_id":"ghost"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(webhook.OutcomeUnresolvable), data["outcome"])
}

func TestReceive_UnknownProviderAndOversizedBody(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, 64)

	rec := post(h, "/webhooks/paypal", http.Header{}, `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	header := http.Header{}
	header.Set("Authorization", rcToken)
	rec = post(h, "/webhooks/revenuecat", header, `{"event":{"id":"`+strings.Repeat("a", 128)+`"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.ledger.Len())
}
