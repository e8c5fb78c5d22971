package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/rag"
	"golang.org/x/sync/singleflight"
)

// Router resolves a presented secret to its cached execution context.
// Contexts are keyed by secret hash and created lazily on first sight.
// Failed verification is never cached, so a bad secret does not block
// a later good one.
//
// Router is safe for concurrent use.
type Router struct {
	keys     apikey.Store
	provider rag.Provider
	logger   log.Logger

	group singleflight.Group

	mu       sync.RWMutex
	contexts map[string]*Context

	defaultCtx *Context
}

// NewRouter builds a Router over the credential store and provider.
func NewRouter(keys apikey.Store, provider rag.Provider, logger log.Logger) (*Router, error) {
	if keys == nil {
		return nil, fmt.Errorf("key store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{
		keys:       keys,
		provider:   provider,
		logger:     logger,
		contexts:   make(map[string]*Context),
		defaultCtx: newContext(provider),
	}, nil
}

// Resolve verifies rawSecret and returns its execution context plus
// the freshly loaded credential. An empty secret yields the single
// unauthenticated default context with a nil key.
//
// Verification happens on every call so last_used_at and the prompt
// selector stay current; only the context itself is cached.
func (r *Router) Resolve(ctx context.Context, rawSecret string) (*Context, *apikey.Key, error) {
	if rawSecret == "" {
		return r.defaultCtx, nil, nil
	}

	hash := apikey.HashSecret(rawSecret)
	key, err := r.keys.GetBySecretHash(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying credential: %w", err)
	}

	return r.contextFor(hash), key, nil
}

// contextFor returns the cached context for a hash, constructing it
// exactly once under concurrent first use.
func (r *Router) contextFor(hash string) *Context {
	r.mu.RLock()
	cc, ok := r.contexts[hash]
	r.mu.RUnlock()
	if ok {
		return cc
	}

	v, _, _ := r.group.Do(hash, func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cc, ok := r.contexts[hash]; ok {
			return cc, nil
		}
		cc := newContext(r.provider)
		r.contexts[hash] = cc
		r.logger.Debug("tenant context created", "hash_prefix", hash[:8])
		return cc, nil
	})
	return v.(*Context)
}

// Default returns the unauthenticated context.
func (r *Router) Default() *Context {
	return r.defaultCtx
}

// Len reports how many credential contexts are cached.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
