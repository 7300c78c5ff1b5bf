package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dragon/internal/contracts"
)

// KVRepository implements contracts.KVRepository over the settings table
// ⭐ SSOT: 설정 key/value 저장소는 여기서만
type KVRepository struct {
	pool *pgxpool.Pool
}

// NewKVRepository creates a new settings KV repository
func NewKVRepository(pool *pgxpool.Pool) *KVRepository {
	return &KVRepository{pool: pool}
}

// Get returns a value and its data-type tag
func (r *KVRepository) Get(ctx context.Context, key string) (string, string, error) {
	var value, dataType string
	err := r.pool.QueryRow(ctx,
		`SELECT value, data_type FROM data.settings WHERE key = $1`, key,
	).Scan(&value, &dataType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", contracts.ErrNotFound
		}
		return "", "", err
	}
	return value, dataType, nil
}

// Set upserts a key with its value and data-type tag
func (r *KVRepository) Set(ctx context.Context, key, value, dataType string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO data.settings (key, value, data_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			data_type = EXCLUDED.data_type,
			updated_at = now()
	`, key, value, dataType)
	return err
}

// All returns every stored key/value pair
func (r *KVRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM data.settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}
