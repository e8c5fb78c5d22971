package apikey

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory credential store with the same semantics as
// Postgres. It backs unit tests throughout the module.
type Memory struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*Key
}

// NewMemory creates an empty in-memory credential store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[uuid.UUID]*Key)}
}

// Create persists a newly issued key.
func (m *Memory) Create(_ context.Context, key *Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.byID[key.ID] = &cp
	return nil
}

// Get returns a key by ID.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// GetBySecretHash returns the key matching a secret hash and bumps
// last_used_at.
func (m *Memory) GetBySecretHash(_ context.Context, hash string) (*Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.byID {
		if key.SecretHash == hash {
			now := time.Now().UTC()
			key.LastUsedAt = &now
			cp := *key
			return &cp, nil
		}
	}
	return nil, ErrKeyNotFound
}

// List returns keys in creation order, optionally filtered by bound store.
func (m *Memory) List(_ context.Context, storeID string) ([]*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]*Key, 0, len(m.byID))
	for _, key := range m.byID {
		if storeID != "" && key.StoreID != storeID {
			continue
		}
		cp := *key
		keys = append(keys, &cp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.Before(keys[j].CreatedAt)
		}
		return keys[i].ID.String() < keys[j].ID.String()
	})
	return keys, nil
}

// UpdateKey applies a partial update; bound store and secret stay untouched.
func (m *Memory) UpdateKey(_ context.Context, id uuid.UUID, upd Update) (*Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if upd.OwnerName != nil {
		key.OwnerName = *upd.OwnerName
	}
	switch {
	case upd.ClearPromptSelector:
		key.PromptSelector = nil
	case upd.PromptSelector != nil:
		sel := *upd.PromptSelector
		key.PromptSelector = &sel
	}
	cp := *key
	return &cp, nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrKeyNotFound
	}
	delete(m.byID, id)
	return nil
}

var _ Store = (*Memory)(nil)
