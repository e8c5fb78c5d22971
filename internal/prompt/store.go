package prompt

import (
	"context"

	"github.com/google/uuid"
)

// Store persists prompts and each store's active-prompt pointer.
//
// All operations are scoped to one knowledge store: a prompt ID presented
// with the wrong store is a miss, never a cross-store access.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create adds a prompt. Fails with ErrStoreFull when the store already
	// holds the configured maximum.
	Create(ctx context.Context, storeID, name, content string) (*Prompt, error)

	// List returns the store's prompts in creation order. The slice index of
	// each prompt is its selector address.
	List(ctx context.Context, storeID string) ([]*Prompt, error)

	// Get returns one prompt, or ErrPromptNotFound if the ID does not belong
	// to the store.
	Get(ctx context.Context, storeID string, id uuid.UUID) (*Prompt, error)

	// Update applies a partial update, or ErrPromptNotFound.
	Update(ctx context.Context, storeID string, id uuid.UUID, upd PromptUpdate) (*Prompt, error)

	// Delete removes a prompt. Deleting the store's active prompt clears the
	// active pointer. Returns ErrPromptNotFound for a foreign or unknown ID.
	Delete(ctx context.Context, storeID string, id uuid.UUID) error

	// SetActive marks a prompt as the store's active instruction. Setting the
	// already-active prompt again is a no-op success. Returns
	// ErrPromptNotFound if the ID is not valid for the store.
	SetActive(ctx context.Context, storeID string, id uuid.UUID) error

	// GetActive returns the store's active prompt, or ok=false when none is
	// set.
	GetActive(ctx context.Context, storeID string) (*Prompt, bool, error)
}
