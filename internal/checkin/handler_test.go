// AngelaMos | 2026
// handler_test.go

package checkin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/checkin"
	"github.com/carterperez-dev/cadence-api/internal/middleware"
)

const submitBody = `{"checkin_id":"C1","week_number":3,` +
	`"payload":{"sleep":7,"energy":8,"mood":6},"completed_at":"2024-03-08T12:00:00Z"}`

func signedInAs(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(f *fixture, userID string) http.Handler {
	r := chi.NewRouter()
	checkin.NewHandler(f.service).RegisterRoutes(r, signedInAs(userID))
	return r
}

func submit(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkins/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errBody, ok := decodeBody(t, rec)["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	code, _ := errBody["code"].(string)
	return code
}

func TestSubmit_CreatedThenReplayed(t *testing.T) {
	f := newFixture(t, weekPtr(3))
	h := newRouter(f, "u1")

	rec := submit(h, submitBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first, ok := decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, first["reused"])
	assert.InDelta(t, 4, first["week_number"], 0)

	rec = submit(h, submitBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second, ok := decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, second["reused"])
	assert.Equal(t, first["score"], second["score"])
	assert.Equal(t, first["generated_at"], second["generated_at"])
	assert.Equal(t, first["next_due_at"], second["next_due_at"])

	assert.Equal(t, 1, f.scorer.Calls())
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		body   string
		status int
		code   string
	}{
		{"malformed json", "u1", `{"checkin_id":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing checkin id", "u1", `{"week_number":3,"payload":{"a":1}}`,
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"week past cap", "u1", `{"checkin_id":"C1","week_number":9,"payload":{"a":1}}`,
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"answers not an object", "u1", `{"checkin_id":"C1","week_number":3,"payload":[1,2]}`,
			http.StatusBadRequest, "VALIDATION_ERROR"},
		{"signed out", "", submitBody, http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, weekPtr(3))

			rec := submit(newRouter(f, tt.userID), tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.Zero(t, f.scorer.Calls())
		})
	}
}

func TestSubmit_StoreFailureIsRetryable(t *testing.T) {
	f := newFixture(t, weekPtr(3))
	f.profiles.SaveErr = errors.New("connection refused")

	rec := submit(newRouter(f, "u1"), submitBody)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "RETRYABLE", errorCode(t, rec))
}

func TestSubmit_AppliesSubmitLimits(t *testing.T) {
	f := newFixture(t, weekPtr(3))
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}

	r := chi.NewRouter()
	checkin.NewHandler(f.service).RegisterRoutes(r, signedInAs("u1"), blocked)

	rec := submit(r, submitBody)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, f.scorer.Calls())
}
