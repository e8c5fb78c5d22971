package apikey

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrKeyNotFound indicates the credential does not exist. A presented secret
// that matches no record is an expected miss, not a failure; callers check
// with errors.Is().
var ErrKeyNotFound = errors.New("api key not found")

// Update describes a partial credential update. The bound store and the
// secret are immutable after issuance; only owner name and prompt selector
// can change. Nil fields are left untouched; ClearPromptSelector removes the
// selector entirely.
type Update struct {
	OwnerName           *string
	PromptSelector      *int32
	ClearPromptSelector bool
}

// Store persists credential records.
//
// Implementations must be safe for concurrent use. Lost updates on the
// advisory last_used_at timestamp are acceptable (last write wins).
type Store interface {
	// Create persists a newly issued key.
	Create(ctx context.Context, key *Key) error

	// Get returns a key by ID, or ErrKeyNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Key, error)

	// GetBySecretHash returns the key matching a secret hash and bumps its
	// last_used_at timestamp. Returns ErrKeyNotFound on a miss.
	GetBySecretHash(ctx context.Context, hash string) (*Key, error)

	// List returns keys in creation order, filtered by bound store when
	// storeID is non-empty.
	List(ctx context.Context, storeID string) ([]*Key, error)

	// UpdateKey applies a partial update and returns the new record, or
	// ErrKeyNotFound.
	UpdateKey(ctx context.Context, id uuid.UUID, upd Update) (*Key, error)

	// Delete removes a key, or returns ErrKeyNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Verify authenticates a raw secret against the store. On success the
// returned key carries the caller's bound store and prompt selector; on a
// miss it returns ErrKeyNotFound. The raw secret is hashed here and never
// reaches the store.
func Verify(ctx context.Context, s Store, raw string) (*Key, error) {
	return s.GetBySecretHash(ctx, HashSecret(raw))
}
