//go:build integration

package prompt_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := prompt.NewPostgres(tdb.Pool, 2, testutil.DiscardLogger())
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("capacity ceiling", func(t *testing.T) {
		_, err := store.Create(ctx, "st_cap", "a", "A")
		require.NoError(t, err)
		_, err = store.Create(ctx, "st_cap", "b", "B")
		require.NoError(t, err)
		_, err = store.Create(ctx, "st_cap", "c", "C")
		assert.ErrorIs(t, err, prompt.ErrStoreFull)
	})

	t.Run("list in creation order", func(t *testing.T) {
		first, err := store.Create(ctx, "st_ord", "first", "1")
		require.NoError(t, err)
		_, err = store.Create(ctx, "st_ord", "second", "2")
		require.NoError(t, err)

		prompts, err := store.List(ctx, "st_ord")
		require.NoError(t, err)
		require.Len(t, prompts, 2)
		assert.Equal(t, first.ID, prompts[0].ID)
		assert.Equal(t, "second", prompts[1].Name)
	})

	t.Run("store scoping", func(t *testing.T) {
		p, err := store.Create(ctx, "st_a", "a", "A")
		require.NoError(t, err)

		_, err = store.Get(ctx, "st_b", p.ID)
		assert.ErrorIs(t, err, prompt.ErrPromptNotFound)
		assert.ErrorIs(t, store.SetActive(ctx, "st_b", p.ID), prompt.ErrPromptNotFound)
	})

	t.Run("active pointer lifecycle", func(t *testing.T) {
		p, err := store.Create(ctx, "st_act", "helpful", "Helpful")
		require.NoError(t, err)

		_, ok, err := store.GetActive(ctx, "st_act")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetActive(ctx, "st_act", p.ID))
		require.NoError(t, store.SetActive(ctx, "st_act", p.ID), "idempotent re-set")

		active, ok, err := store.GetActive(ctx, "st_act")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, p.ID, active.ID)

		// Deleting the active prompt clears the pointer.
		require.NoError(t, store.Delete(ctx, "st_act", p.ID))
		_, ok, err = store.GetActive(ctx, "st_act")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update and misses", func(t *testing.T) {
		p, err := store.Create(ctx, "st_upd", "old", "text")
		require.NoError(t, err)

		name := "new"
		updated, err := store.Update(ctx, "st_upd", p.ID, prompt.PromptUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "new", updated.Name)
		assert.Equal(t, "text", updated.Content)

		_, err = store.Update(ctx, "st_upd", uuid.New(), prompt.PromptUpdate{Name: &name})
		assert.ErrorIs(t, err, prompt.ErrPromptNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "st_upd", uuid.New()), prompt.ErrPromptNotFound)
	})
}
