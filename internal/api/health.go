package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storegate/storegate/internal/log"
)

// health is a liveness probe. Returns 200 with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness is a readiness probe. With a pool it verifies database
// connectivity; without one it degrades to the liveness answer.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", logger)
			return
		}

		stat := pool.Stat()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"total_conns":       stat.TotalConns(),
			"idle_conns":        stat.IdleConns(),
			"acquired_conns":    stat.AcquiredConns(),
			"max_conns":         stat.MaxConns(),
			"acquired_duration": stat.AcquireDuration().String(),
		}, logger)
	}
}
