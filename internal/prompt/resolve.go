package prompt

import (
	"context"
	"fmt"

	"github.com/storegate/storegate/internal/apikey"
)

// Resolution names the rule that produced an instruction, for logging.
type Resolution string

// Resolution sources, in priority order.
const (
	SourceInline   Resolution = "inline"
	SourceSelector Resolution = "selector"
	SourceActive   Resolution = "active"
	SourceNone     Resolution = "none"
)

// Resolver picks the system instruction for a request from an explicit,
// ordered list of rules. Each rule either resolves or defers to the next:
//
//  1. an inline instruction supplied with the request wins unconditionally;
//  2. else the credential's prompt selector, if it indexes into the store's
//     current prompt list;
//  3. else the store's active prompt;
//  4. else no instruction.
//
// The selector is evaluated against the list as it exists at resolution
// time, never a cached snapshot, so registry edits immediately change what
// an index-bound credential resolves to. An out-of-range selector defers
// rather than failing.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver over the given registry.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// rule is one step of the chain. It returns the instruction, whether it
// resolved, and the source label.
type rule func(ctx context.Context) (string, bool, error)

// Resolve returns the instruction for a request. key may be nil for
// unauthenticated requests. The empty string with SourceNone means no
// instruction is applied.
func (r *Resolver) Resolve(ctx context.Context, inline string, key *apikey.Key, storeID string) (string, Resolution, error) {
	rules := []struct {
		source Resolution
		apply  rule
	}{
		{SourceInline, func(context.Context) (string, bool, error) {
			return inline, inline != "", nil
		}},
		{SourceSelector, func(ctx context.Context) (string, bool, error) {
			return r.bySelector(ctx, key, storeID)
		}},
		{SourceActive, func(ctx context.Context) (string, bool, error) {
			return r.byActive(ctx, storeID)
		}},
	}

	for _, step := range rules {
		instruction, ok, err := step.apply(ctx)
		if err != nil {
			return "", SourceNone, fmt.Errorf("resolving instruction (%s): %w", step.source, err)
		}
		if ok {
			return instruction, step.source, nil
		}
	}
	return "", SourceNone, nil
}

// bySelector resolves the credential's prompt selector against the store's
// current prompt list.
func (r *Resolver) bySelector(ctx context.Context, key *apikey.Key, storeID string) (string, bool, error) {
	if key == nil || key.PromptSelector == nil {
		return "", false, nil
	}
	prompts, err := r.store.List(ctx, storeID)
	if err != nil {
		return "", false, err
	}
	idx := int(*key.PromptSelector)
	if idx < 0 || idx >= len(prompts) {
		// Stale or never-valid index: defer to the next rule.
		return "", false, nil
	}
	return prompts[idx].Content, true, nil
}

// byActive resolves the store's active prompt.
func (r *Resolver) byActive(ctx context.Context, storeID string) (string, bool, error) {
	active, ok, err := r.store.GetActive(ctx, storeID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return active.Content, true, nil
}
