// Package apikey implements tenant credential issuance and verification.
//
// A credential is a bearer secret scoped to one knowledge store and,
// optionally, one prompt (by index). Only the SHA-256 hash and a short
// display prefix of the secret are ever persisted: the raw secret exists
// outside the caller exactly once, in the response to the create call.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// secretPrefixLen is the number of leading characters kept for display.
const secretPrefixLen = 8

// secretBytes is the entropy of a generated secret.
const secretBytes = 32

// Key is a persisted credential record. SecretHash is never serialized.
type Key struct {
	ID             uuid.UUID  `json:"id"`
	SecretHash     string     `json:"-"`
	SecretPrefix   string     `json:"secret_prefix"`
	OwnerName      string     `json:"owner_name"`
	StoreID        string     `json:"store_id"`
	PromptSelector *int32     `json:"prompt_selector,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// Secret is a raw credential secret. It is a distinct type so a raw secret
// cannot be stored in a Key field by accident; values only ever flow from
// Issue to the creating caller.
type Secret string

// Issue generates a fresh credential bound to storeID. It returns the record
// to persist and the plaintext secret. The secret is not recoverable from the
// record.
func Issue(ownerName, storeID string, promptSelector *int32) (*Key, Secret, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating secret: %w", err)
	}
	secret := Secret("sg_" + base64.RawURLEncoding.EncodeToString(raw))

	key := &Key{
		ID:             uuid.New(),
		SecretHash:     HashSecret(string(secret)),
		SecretPrefix:   Prefix(string(secret)),
		OwnerName:      ownerName,
		StoreID:        storeID,
		PromptSelector: promptSelector,
		CreatedAt:      time.Now().UTC(),
	}
	return key, secret, nil
}

// HashSecret returns the hex-encoded SHA-256 digest of a raw secret.
// Deterministic: the digest is the lookup key for verification.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Prefix returns a short leading fragment of a raw secret for display in
// listings. It carries no security guarantee and must never be used for
// authentication.
func Prefix(raw string) string {
	if len(raw) <= secretPrefixLen {
		return raw
	}
	return raw[:secretPrefixLen]
}
