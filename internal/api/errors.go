package api

import (
	"errors"
	"net/http"

	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// handleError maps component failures onto the HTTP error taxonomy:
// typed misses become 404, capacity and bad conversation state 400,
// provider throttling 429 with Retry-After, other upstream failures
// 502. Anything unrecognized is a 500.
func handleError(w http.ResponseWriter, err error, logger log.Logger) {
	var pe *rag.ProviderError

	switch {
	case errors.Is(err, apikey.ErrKeyNotFound):
		WriteError(w, http.StatusNotFound, "key_not_found", "api key not found", logger)
	case errors.Is(err, prompt.ErrPromptNotFound):
		WriteError(w, http.StatusNotFound, "prompt_not_found", "prompt not found", logger)
	case errors.Is(err, prompt.ErrStoreFull):
		WriteError(w, http.StatusBadRequest, "prompt_limit_reached", "prompt limit reached for this store", logger)
	case errors.Is(err, rag.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "resource not found", logger)
	case errors.Is(err, rag.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		WriteError(w, http.StatusTooManyRequests, "provider_rate_limited", "provider quota exceeded, retry later", logger)
	case errors.Is(err, rag.ErrUnauthenticated):
		WriteError(w, http.StatusBadGateway, "provider_auth", "provider rejected the service credential", logger)
	case errors.Is(err, tenant.ErrNoActiveChat):
		WriteError(w, http.StatusBadRequest, "no_active_chat", "start a chat before sending messages", logger)
	case errors.As(err, &pe):
		logger.Error("provider failure", "op", pe.Op, "error", pe.Err)
		WriteError(w, http.StatusBadGateway, "provider_error", pe.Error(), logger)
	default:
		logger.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}

// unauthorized reports a missing or invalid credential.
func unauthorized(w http.ResponseWriter, logger log.Logger) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api key", logger)
}

// providerUnavailable reports degraded mode: no upstream credential
// was configured, so provider-backed routes cannot be served.
func providerUnavailable(w http.ResponseWriter, logger log.Logger) {
	WriteError(w, http.StatusServiceUnavailable, "provider_unavailable",
		"no provider credential configured, provider-backed routes are disabled", logger)
}
