// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/ledger"
	"github.com/carterperez-dev/cadence-api/internal/webhook"
)

type stubLedger struct {
	stats *ledger.Stats
	err   error
}

func (s stubLedger) Stats(context.Context) (*ledger.Stats, error) {
	return s.stats, s.err
}

type mockReprocessor struct {
	mock.Mock
}

func (m *mockReprocessor) ReprocessPending(ctx context.Context) (*webhook.ReprocessReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*webhook.ReprocessReport)
	return report, args.Error(1)
}

func passthrough(next http.Handler) http.Handler { return next }

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r, passthrough, passthrough)
	return r
}

func TestLedgerStats(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Ledger: stubLedger{stats: &ledger.Stats{Total: 10, Processed: 7, Unprocessed: 3, Failed: 1}},
	})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats/ledger", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data ledger.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Data.Unprocessed)
	assert.Equal(t, int64(1), body.Data.Failed)
}

func TestLedgerStats_StoreDown(t *testing.T) {
	h := NewHandler(HandlerConfig{Ledger: stubLedger{err: errors.New("down")}})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats/ledger", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReprocessWebhooks(t *testing.T) {
	re := &mockReprocessor{}
	re.On("ReprocessPending", mock.Anything).
		Return(&webhook.ReprocessReport{Scanned: 2, Applied: 1, Failed: 1}, nil).Once()
	h := NewHandler(HandlerConfig{Webhooks: re})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/webhooks/reprocess", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scanned":2`)
	re.AssertExpectations(t)
}

func TestReprocessWebhooks_StoreDown(t *testing.T) {
	re := &mockReprocessor{}
	re.On("ReprocessPending", mock.Anything).Return(nil, errors.New("down"))
	h := NewHandler(HandlerConfig{Webhooks: re})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/webhooks/reprocess", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSystemStats_IncludesLedger(t *testing.T) {
	h := NewHandler(HandlerConfig{
		DBPing: func(context.Context) error { return errors.New("nope") },
		Ledger: stubLedger{stats: &ledger.Stats{Total: 1}},
	})

	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data SystemStatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Database.Healthy)
	assert.True(t, body.Data.Redis.Healthy)
	require.NotNil(t, body.Data.Ledger)
	assert.Equal(t, int64(1), body.Data.Ledger.Total)
}
