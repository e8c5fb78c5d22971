package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory prompt registry with the same semantics as
// Postgres. It backs unit tests throughout the module.
type Memory struct {
	mu          sync.RWMutex
	maxPerStore int
	byStore     map[string][]*Prompt // creation order
	active      map[string]uuid.UUID // store -> active prompt id
}

// NewMemory creates an empty in-memory registry with the given per-store
// capacity ceiling.
func NewMemory(maxPerStore int) *Memory {
	return &Memory{
		maxPerStore: maxPerStore,
		byStore:     make(map[string][]*Prompt),
		active:      make(map[string]uuid.UUID),
	}
}

// Create adds a prompt, enforcing the capacity ceiling.
func (m *Memory) Create(_ context.Context, storeID, name, content string) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byStore[storeID]) >= m.maxPerStore {
		return nil, fmt.Errorf("store %q already holds %d prompts: %w",
			storeID, len(m.byStore[storeID]), ErrStoreFull)
	}

	pr := &Prompt{
		ID:        uuid.New(),
		StoreID:   storeID,
		Name:      name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	m.byStore[storeID] = append(m.byStore[storeID], pr)
	cp := *pr
	return &cp, nil
}

// List returns the store's prompts in creation order.
func (m *Memory) List(_ context.Context, storeID string) ([]*Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prompts := make([]*Prompt, 0, len(m.byStore[storeID]))
	for _, pr := range m.byStore[storeID] {
		cp := *pr
		prompts = append(prompts, &cp)
	}
	return prompts, nil
}

// Get returns one prompt scoped to the store.
func (m *Memory) Get(_ context.Context, storeID string, id uuid.UUID) (*Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr := m.find(storeID, id)
	if pr == nil {
		return nil, ErrPromptNotFound
	}
	cp := *pr
	return &cp, nil
}

// Update applies a partial update scoped to the store.
func (m *Memory) Update(_ context.Context, storeID string, id uuid.UUID, upd PromptUpdate) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr := m.find(storeID, id)
	if pr == nil {
		return nil, ErrPromptNotFound
	}
	if upd.Name != nil {
		pr.Name = *upd.Name
	}
	if upd.Content != nil {
		pr.Content = *upd.Content
	}
	cp := *pr
	return &cp, nil
}

// Delete removes a prompt, clearing the store's active pointer when the
// deleted prompt was active.
func (m *Memory) Delete(_ context.Context, storeID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prompts := m.byStore[storeID]
	for i, pr := range prompts {
		if pr.ID == id {
			m.byStore[storeID] = append(prompts[:i:i], prompts[i+1:]...)
			if m.active[storeID] == id {
				delete(m.active, storeID)
			}
			return nil
		}
	}
	return ErrPromptNotFound
}

// SetActive marks a prompt as the store's active instruction.
func (m *Memory) SetActive(_ context.Context, storeID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(storeID, id) == nil {
		return ErrPromptNotFound
	}
	m.active[storeID] = id
	return nil
}

// GetActive returns the store's active prompt, if any.
func (m *Memory) GetActive(_ context.Context, storeID string) (*Prompt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[storeID]
	if !ok {
		return nil, false, nil
	}
	pr := m.find(storeID, id)
	if pr == nil {
		return nil, false, nil
	}
	cp := *pr
	return &cp, true, nil
}

// find returns the store's prompt with the given ID. Caller holds the lock.
func (m *Memory) find(storeID string, id uuid.UUID) *Prompt {
	for _, pr := range m.byStore[storeID] {
		if pr.ID == id {
			return pr
		}
	}
	return nil
}

var _ Store = (*Memory)(nil)
