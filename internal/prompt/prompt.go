// Package prompt implements the per-store instruction registry and the
// resolution chain that picks the system instruction for a request.
//
// Prompts belong to a knowledge store. Their creation order defines the
// index space addressed by a credential's prompt selector; independently,
// each store may mark at most one prompt as active.
package prompt

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for registry operations; callers check with errors.Is().
var (
	// ErrPromptNotFound indicates the prompt does not exist in the store.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrStoreFull indicates the store already holds the configured maximum
	// number of prompts.
	ErrStoreFull = errors.New("prompt store is full")
)

// Prompt is a named instruction template owned by one store.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptUpdate describes a partial prompt update; nil fields are untouched.
type PromptUpdate struct {
	Name    *string
	Content *string
}
