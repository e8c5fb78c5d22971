package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on when mapping to HTTP status codes.
var (
	// ErrNotFound means the store or document does not exist upstream.
	ErrNotFound = errors.New("resource not found")
	// ErrRateLimited means the upstream provider rejected the call for
	// quota or rate reasons and the client should retry later.
	ErrRateLimited = errors.New("provider rate limit exceeded")
	// ErrUnauthenticated means the provider credential was rejected.
	ErrUnauthenticated = errors.New("provider credential rejected")
)

// ProviderError wraps an upstream failure that is none of the sentinel
// cases. Op names the provider call that failed.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}
