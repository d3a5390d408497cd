package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectSetting = `SELECT value FROM settings WHERE key = $1`
	upsertSetting = `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	listSettings = `SELECT key, value FROM settings ORDER BY key`
)

// SettingsRepo stores settings in PostgreSQL. Values are encrypted at rest
// when a crypto service is configured; each ciphertext is bound to its key.
type SettingsRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

var _ domain.SettingsStore = (*SettingsRepo)(nil)

// NewSettingsRepo creates the repository. A nil cryptoSvc stores values in
// plain text.
func NewSettingsRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *SettingsRepo {
	return &SettingsRepo{pool: pool, crypto: cryptoSvc}
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var stored string
	err := r.pool.QueryRow(ctx, selectSetting, key).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return r.open(key, stored)
}

func (r *SettingsRepo) Put(ctx context.Context, key, value string) error {
	sealed, err := r.seal(key, value)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertSetting, key, sealed); err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}
	return nil
}

func (r *SettingsRepo) List(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.pool.Query(ctx, listSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	type row struct {
		Key   string
		Value string
	}
	stored, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, fmt.Errorf("failed to scan settings: %w", err)
	}

	settings := make([]domain.Setting, 0, len(stored))
	for _, s := range stored {
		value, err := r.open(s.Key, s.Value)
		if err != nil {
			return nil, err
		}
		settings = append(settings, domain.Setting{Key: s.Key, Value: value})
	}
	return settings, nil
}

func (r *SettingsRepo) seal(key, value string) (string, error) {
	if r.crypto == nil {
		return value, nil
	}
	sealed, err := r.crypto.Encrypt(value, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt setting %s: %w", key, err)
	}
	return sealed, nil
}

func (r *SettingsRepo) open(key, stored string) (string, error) {
	if r.crypto == nil {
		return stored, nil
	}
	value, err := r.crypto.Decrypt(stored, key)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt setting %s: %w", key, err)
	}
	return value, nil
}
