// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
	"github.com/carterperez-dev/cadence-api/internal/webhook"
)

type LedgerStats interface {
	Stats(ctx context.Context) (*ledger.Stats, error)
}

type Reprocessor interface {
	ReprocessPending(ctx context.Context) (*webhook.ReprocessReport, error)
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	ledger     LedgerStats
	webhooks   Reprocessor
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Ledger     LedgerStats
	Webhooks   Reprocessor
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		ledger:     cfg.Ledger,
		webhooks:   cfg.Webhooks,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/ledger", h.GetLedgerStats)
		r.Post("/webhooks/reprocess", h.ReprocessWebhooks)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := h.dbPing == nil || h.dbPing(ctx) == nil
	redisHealthy := h.redisPing == nil || h.redisPing(ctx) == nil

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: dbHealthy,
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: redisHealthy,
			Stats:   h.getRedisStats(),
		},
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	}

	if h.ledger != nil {
		if stats, err := h.ledger.Stats(ctx); err == nil {
			response.Ledger = stats
		}
	}

	core.OK(w, response)
}

func (h *Handler) GetLedgerStats(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		core.NotFound(w, "ledger")
		return
	}

	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		core.ServiceUnavailable(w)
		return
	}

	core.OK(w, stats)
}

// ReprocessWebhooks runs one sweep over recorded but unprocessed lifecycle
// events and reports what happened to them.
func (h *Handler) ReprocessWebhooks(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		core.NotFound(w, "webhook reprocessor")
		return
	}

	report, err := h.webhooks.ReprocessPending(r.Context())
	if err != nil {
		core.ServiceUnavailable(w)
		return
	}

	core.OK(w, report)
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}
