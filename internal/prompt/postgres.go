package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storegate/storegate/internal/log"
)

// promptCols is the standard SELECT column list for scanPrompt.
const promptCols = `id, store_id, name, content, created_at`

// Postgres is the pgx-backed prompt registry.
//
// Postgres is safe for concurrent use by multiple goroutines. The per-store
// capacity ceiling is enforced under a per-store advisory lock so concurrent
// creates cannot overshoot it.
type Postgres struct {
	pool        *pgxpool.Pool
	maxPerStore int
	logger      log.Logger
}

// NewPostgres creates a Postgres prompt registry with the given per-store
// capacity ceiling.
func NewPostgres(pool *pgxpool.Pool, maxPerStore int, logger log.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if maxPerStore < 1 {
		return nil, fmt.Errorf("maxPerStore must be positive, got %d", maxPerStore)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{pool: pool, maxPerStore: maxPerStore, logger: logger}, nil
}

// Create adds a prompt, enforcing the capacity ceiling transactionally.
func (p *Postgres) Create(ctx context.Context, storeID, name, content string) (*Prompt, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize creates per store; the count check below is racy without it.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, storeID); err != nil {
		return nil, fmt.Errorf("acquiring store lock: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM prompts WHERE store_id = $1`, storeID).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting prompts: %w", err)
	}
	if count >= p.maxPerStore {
		return nil, fmt.Errorf("store %q already holds %d prompts: %w", storeID, count, ErrStoreFull)
	}

	row := tx.QueryRow(ctx, `INSERT INTO prompts (store_id, name, content)
		VALUES ($1, $2, $3) RETURNING `+promptCols, storeID, name, content)
	created, err := scanPrompt(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing prompt create: %w", err)
	}
	p.logger.Debug("created prompt", "id", created.ID, "store", storeID, "name", name)
	return created, nil
}

// List returns the store's prompts in creation order.
func (p *Postgres) List(ctx context.Context, storeID string) ([]*Prompt, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+promptCols+` FROM prompts WHERE store_id = $1 ORDER BY seq`, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*Prompt
	for rows.Next() {
		pr, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prompts: %w", err)
	}
	return prompts, nil
}

// Get returns one prompt scoped to the store.
func (p *Postgres) Get(ctx context.Context, storeID string, id uuid.UUID) (*Prompt, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+promptCols+` FROM prompts WHERE store_id = $1 AND id = $2`, storeID, id)
	return scanPrompt(row)
}

// Update applies a partial update scoped to the store.
func (p *Postgres) Update(ctx context.Context, storeID string, id uuid.UUID, upd PromptUpdate) (*Prompt, error) {
	sets := make([]string, 0, 2)
	args := []any{storeID, id}

	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Content != nil {
		args = append(args, *upd.Content)
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}
	if len(sets) == 0 {
		return p.Get(ctx, storeID, id)
	}

	row := p.pool.QueryRow(ctx, `UPDATE prompts SET `+strings.Join(sets, ", ")+`
		WHERE store_id = $1 AND id = $2 RETURNING `+promptCols, args...)
	return scanPrompt(row)
}

// Delete removes a prompt. The store_active_prompts cascade clears the
// active pointer when the active prompt is deleted.
func (p *Postgres) Delete(ctx context.Context, storeID string, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM prompts WHERE store_id = $1 AND id = $2`, storeID, id)
	if err != nil {
		return fmt.Errorf("deleting prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// SetActive marks a prompt as the store's active instruction.
func (p *Postgres) SetActive(ctx context.Context, storeID string, id uuid.UUID) error {
	// The WHERE EXISTS guard scopes the upsert to prompts actually owned by
	// the store, so a foreign ID can never become an active pointer.
	tag, err := p.pool.Exec(ctx, `INSERT INTO store_active_prompts (store_id, prompt_id)
		SELECT $1, $2 WHERE EXISTS (
			SELECT 1 FROM prompts WHERE store_id = $1 AND id = $2
		)
		ON CONFLICT (store_id) DO UPDATE SET prompt_id = EXCLUDED.prompt_id`,
		storeID, id)
	if err != nil {
		return fmt.Errorf("setting active prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// GetActive returns the store's active prompt, if any.
func (p *Postgres) GetActive(ctx context.Context, storeID string) (*Prompt, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT p.id, p.store_id, p.name, p.content, p.created_at
		FROM store_active_prompts a
		JOIN prompts p ON p.id = a.prompt_id
		WHERE a.store_id = $1`, storeID)
	pr, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, ErrPromptNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return pr, true, nil
}

// scanPrompt scans a single prompt row, mapping pgx.ErrNoRows to
// ErrPromptNotFound.
func scanPrompt(row pgx.Row) (*Prompt, error) {
	var pr Prompt
	err := row.Scan(&pr.ID, &pr.StoreID, &pr.Name, &pr.Content, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("scanning prompt: %w", err)
	}
	return &pr, nil
}

var _ Store = (*Postgres)(nil)
