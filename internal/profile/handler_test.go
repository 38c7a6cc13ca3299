// AngelaMos | 2026
// handler_test.go

package profile_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/middleware"
	"github.com/carterperez-dev/cadence-api/internal/profile"
)

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
	profile.NewHandler(f.service).RegisterRoutes(r, signedInAs(userID))
	return r
}

func call(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func envelopeOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out))
	return out
}

func TestHandler_EnsureWithEmptyBody(t *testing.T) {
	f := newFixture(t)

	rec := call(newRouter(f, "u1"), http.MethodPost, "/profile", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := envelopeOf(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(entitlement.StatusNone), data["status"])
	assert.NotNil(t, f.profiles.Snapshot("u1"))
}

func TestHandler_StartTrial(t *testing.T) {
	f := newFixture(t)

	rec := call(newRouter(f, "u1"), http.MethodPost, "/profile/trial", `{"timezone":"America/New_York"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := envelopeOf(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(entitlement.StatusTrial), data["status"])
	assert.Equal(t, true, data["has_access"])
	assert.InDelta(t, 1, data["current_week"], 0)
}

func TestHandler_SubmitIntakeCreated(t *testing.T) {
	f := newFixture(t, profile.New("u1", ""))

	rec := call(newRouter(f, "u1"), http.MethodPost, "/intake",
		`{"answers":{"primary_goal":"sleep better","sleep":6}}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := envelopeOf(t, rec)["data"].(map[string]any)
	prefs := data["derived_preferences"].(map[string]any)
	assert.Equal(t, "sleep better", prefs["primary_goal"])
	assert.Equal(t, 1, f.history.Len())
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		method  string
		path    string
		body    string
		status  int
		code    string
		message string
	}{
		{"signed out", "", http.MethodGet, "/profile/entitlement", "",
			http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"unknown timezone", "u1", http.MethodPut, "/profile/timezone", `{"timezone":"Mars/Base"}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "unknown timezone"},
		{"missing timezone", "u1", http.MethodPut, "/profile/timezone", `{}`,
			http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"malformed body", "u1", http.MethodPost, "/profile/trial", `{"timezone":`,
			http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body"},
		{"intake not an object", "u1", http.MethodPost, "/intake", `{"answers":[1]}`,
			http.StatusBadRequest, "VALIDATION_ERROR", "invalid answers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, profile.New("u1", ""))

			rec := call(newRouter(f, tt.userID), tt.method, tt.path, tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			errBody, ok := envelopeOf(t, rec)["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.code, errBody["code"])
			if tt.message != "" {
				assert.Equal(t, tt.message, errBody["message"])
			}
		})
	}
}

func TestHandler_StoreFailureIsRetryable(t *testing.T) {
	f := newFixture(t, profile.New("u1", ""))
	f.profiles.SaveErr = errors.New("connection reset")

	rec := call(newRouter(f, "u1"), http.MethodPost, "/intake", `{"answers":{"sleep":6}}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errBody := envelopeOf(t, rec)["error"].(map[string]any)
	assert.Equal(t, "RETRYABLE", errBody["code"])
}
