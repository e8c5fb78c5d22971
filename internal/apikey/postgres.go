package apikey

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

// keyCols is the standard SELECT column list for scanKey.
const keyCols = `id, secret_hash, secret_prefix, owner_name, store_id,
	prompt_selector, created_at, last_used_at`

// Postgres is the pgx-backed credential store.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgres creates a Postgres credential store.
func NewPostgres(pool *pgxpool.Pool, logger log.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Create persists a newly issued key.
func (p *Postgres) Create(ctx context.Context, key *Key) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO api_keys
		(id, secret_hash, secret_prefix, owner_name, store_id, prompt_selector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.SecretHash, key.SecretPrefix, key.OwnerName,
		key.StoreID, key.PromptSelector, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	p.logger.Debug("created api key", "id", key.ID, "store", key.StoreID)
	return nil
}

// Get returns a key by ID.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*Key, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+keyCols+` FROM api_keys WHERE id = $1`, id)
	return scanKey(row)
}

// GetBySecretHash returns the key matching a secret hash, bumping
// last_used_at in the same statement. Last write wins on the timestamp;
// it is advisory telemetry, not state.
func (p *Postgres) GetBySecretHash(ctx context.Context, hash string) (*Key, error) {
	row := p.pool.QueryRow(ctx, `UPDATE api_keys SET last_used_at = now()
		WHERE secret_hash = $1
		RETURNING `+keyCols, hash)
	return scanKey(row)
}

// List returns keys in creation order, optionally filtered by bound store.
func (p *Postgres) List(ctx context.Context, storeID string) ([]*Key, error) {
	query := `SELECT ` + keyCols + ` FROM api_keys`
	var args []any
	if storeID != "" {
		query += ` WHERE store_id = $1`
		args = append(args, storeID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// UpdateKey applies a partial update. The bound store and secret columns are
// never part of the SET list.
func (p *Postgres) UpdateKey(ctx context.Context, id uuid.UUID, upd Update) (*Key, error) {
	sets := make([]string, 0, 2)
	args := []any{id}

	if upd.OwnerName != nil {
		args = append(args, *upd.OwnerName)
		sets = append(sets, fmt.Sprintf("owner_name = $%d", len(args)))
	}
	switch {
	case upd.ClearPromptSelector:
		sets = append(sets, "prompt_selector = NULL")
	case upd.PromptSelector != nil:
		args = append(args, *upd.PromptSelector)
		sets = append(sets, fmt.Sprintf("prompt_selector = $%d", len(args)))
	}

	if len(sets) == 0 {
		return p.Get(ctx, id)
	}

	row := p.pool.QueryRow(ctx, `UPDATE api_keys SET `+strings.Join(sets, ", ")+`
		WHERE id = $1 RETURNING `+keyCols, args...)
	return scanKey(row)
}

// Delete removes a key.
func (p *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// scanKey scans a single key row, mapping pgx.ErrNoRows to ErrKeyNotFound.
func scanKey(row pgx.Row) (*Key, error) {
	var key Key
	err := row.Scan(&key.ID, &key.SecretHash, &key.SecretPrefix, &key.OwnerName,
		&key.StoreID, &key.PromptSelector, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}
	return &key, nil
}

var _ Store = (*Postgres)(nil)
