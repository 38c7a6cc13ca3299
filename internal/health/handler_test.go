// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("down") }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ReadinessResponse {
	t.Helper()
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestReadiness_AllHealthy(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: CheckFunc(ok)},
		Dependency{Name: "redis", Checker: CheckFunc(ok)},
	)

	rec := serve(h, "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, "database", body.Checks[0].Name)
	assert.Equal(t, "redis", body.Checks[1].Name)
}

func TestReadiness_RequiredFailure(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: CheckFunc(fail)},
		Dependency{Name: "redis", Checker: CheckFunc(ok), Optional: true},
	)

	rec := serve(h, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unavailable", body.Status)
	assert.False(t, body.Checks[0].Healthy)
	assert.Equal(t, "ping failed", body.Checks[0].Message)
}

func TestReadiness_OptionalFailureDegrades(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: CheckFunc(ok)},
		Dependency{Name: "redis", Checker: CheckFunc(fail), Optional: true},
	)

	rec := serve(h, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec).Status)
}

func TestReadiness_UnconfiguredChecker(t *testing.T) {
	rec := serve(NewHandler(Dependency{Name: "database"}), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database checker not configured")
}

func TestShutdownFlags(t *testing.T) {
	h := NewHandler(Dependency{Name: "database", Checker: CheckFunc(ok)})

	assert.Equal(t, http.StatusOK, serve(h, "/livez").Code)

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(h, "/healthz").Code)

	h.SetShutdown(true)
	rec := serve(h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}
