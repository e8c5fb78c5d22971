// Package api implements the HTTP surface: store and file passthrough,
// grounded query and chat, prompt registry CRUD, credential lifecycle,
// and the OpenAI-compatible completions shim.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger  log.Logger
	Keys    apikey.Store // Required
	Prompts prompt.Store // Required

	// Provider and Router are nil when no provider credential is
	// configured; provider-backed routes then answer 503.
	Provider rag.Provider
	Router   *tenant.Router

	Pool *pgxpool.Pool // Optional: nil disables pool stats in /ready

	ModelName     string   // Default generation model
	AllowedModels []string // Models the completions shim accepts as-is

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // Per-IP burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Keys == nil {
		return nil, errors.New("key store is required")
	}
	if cfg.Prompts == nil {
		return nil, errors.New("prompt store is required")
	}
	if (cfg.Provider == nil) != (cfg.Router == nil) {
		return nil, errors.New("provider and router must be set together")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	resolver := prompt.NewResolver(cfg.Prompts)

	sh := &storeHandler{
		provider: cfg.Provider,
		router:   cfg.Router,
		resolver: resolver,
		logger:   logger,
	}
	ch := &chatHandler{
		provider: cfg.Provider,
		router:   cfg.Router,
		resolver: resolver,
		logger:   logger,
	}
	ph := &promptHandler{store: cfg.Prompts, logger: logger}
	kh := &keyHandler{keys: cfg.Keys, logger: logger}
	oh := &completionsHandler{
		provider:      cfg.Provider,
		router:        cfg.Router,
		resolver:      resolver,
		defaultModel:  cfg.ModelName,
		allowedModels: cfg.AllowedModels,
		logger:        logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", index(logger))

	// Store and file passthrough
	mux.HandleFunc("GET /stores", sh.listStores)
	mux.HandleFunc("POST /stores", sh.createStore)
	mux.HandleFunc("DELETE /stores/{id}", sh.deleteStore)
	mux.HandleFunc("GET /stores/{id}/files", sh.listFiles)
	mux.HandleFunc("POST /stores/{id}/upload", sh.uploadFile)
	mux.HandleFunc("DELETE /files/{id...}", sh.deleteFile)

	// Grounded query and chat
	mux.HandleFunc("POST /query", sh.query)
	mux.HandleFunc("POST /chat/start", ch.start)
	mux.HandleFunc("POST /chat/message", ch.message)
	mux.HandleFunc("GET /chat/history", ch.history)

	// Prompt registry
	mux.HandleFunc("GET /stores/{id}/prompts", ph.list)
	mux.HandleFunc("POST /stores/{id}/prompts", ph.create)
	mux.HandleFunc("GET /stores/{id}/prompts/active", ph.getActive)
	mux.HandleFunc("GET /stores/{id}/prompts/{promptID}", ph.get)
	mux.HandleFunc("PUT /stores/{id}/prompts/{promptID}", ph.update)
	mux.HandleFunc("DELETE /stores/{id}/prompts/{promptID}", ph.delete)
	mux.HandleFunc("PUT /stores/{id}/prompts/{promptID}/active", ph.setActive)

	// Credential lifecycle
	mux.HandleFunc("GET /keys", kh.list)
	mux.HandleFunc("POST /keys", kh.create)
	mux.HandleFunc("GET /keys/{id}", kh.get)
	mux.HandleFunc("PUT /keys/{id}", kh.update)
	mux.HandleFunc("DELETE /keys/{id}", kh.delete)

	// OpenAI-compatible shim
	mux.HandleFunc("POST /v1/chat/completions", oh.completions)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in
	// log attributes. CORS must be before RateLimit so preflight
	// OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// index describes the service for anyone poking the root path.
func index(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "storegate",
			"endpoints": []string{
				"/stores", "/query", "/chat/start", "/chat/message", "/chat/history",
				"/keys", "/v1/chat/completions", "/health", "/ready",
			},
		}, logger)
	}
}
