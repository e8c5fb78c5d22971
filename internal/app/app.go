// Package app wires the application together: configuration, database
// pool, credential and prompt stores, the Gemini provider, the tenant
// router, and the HTTP server.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storegate/storegate/internal/api"
	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/config"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool  *pgxpool.Pool
	Keys    apikey.Store
	Prompts prompt.Store

	// Provider and Router are nil in degraded mode (no Gemini API
	// key); provider-backed routes then answer 503.
	Provider rag.Provider
	Router   *tenant.Router

	Server *api.Server

	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Degraded reports whether the app runs without a provider credential.
func (a *App) Degraded() bool {
	return a.Provider == nil
}
