package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-api/internal/domain/auth"
)

const findAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes
	FROM api_keys WHERE key_hash = $1 AND active = TRUE`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns the active API key matching the given hash, or
// auth.ErrKeyNotFound.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	rows, err := r.pool.Query(ctx, findAPIKeyByHashSQL, hash)
	if err != nil {
		return nil, fmt.Errorf("finding api key: %w", err)
	}

	k, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (auth.APIKey, error) {
		var k auth.APIKey
		err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.Scopes)
		return k, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &k, nil
}
