package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/physiopost/internal/models"
)

type ApiKeyRepository interface {
	// GetByHash returns nil when no key has that hash.
	GetByHash(ctx context.Context, keyHash string) (*models.ApiKey, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	Create(ctx context.Context, apiKey *models.ApiKey) (int64, error)
	CheckByUserID(ctx context.Context, keyID, userID int64) (bool, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Remove(ctx context.Context, id int64) error
}

const apiKeyColumns = "id, user_id, role, key_prefix, key_hash, last_used_at, created_at"

type apiKeyRepository struct {
	db *sql.DB
}

func NewApiKeyRepository(db *sql.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func scanApiKey(row rowScanner) (*models.ApiKey, error) {
	var (
		key      models.ApiKey
		lastUsed sql.NullTime
	)
	if err := row.Scan(&key.ID, &key.UserID, &key.Role, &key.Prefix, &key.KeyHash, &lastUsed, &key.CreatedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	return &key, nil
}

func (r *apiKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.ApiKey, error) {
	query := "SELECT " + apiKeyColumns + " FROM api_keys WHERE key_hash = $1"
	key, err := scanApiKey(r.db.QueryRowContext(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return key, nil
}

func (r *apiKeyRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	query := "SELECT " + apiKeyColumns + " FROM api_keys WHERE user_id = $1 ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var apiKeys []*models.ApiKey
	for rows.Next() {
		key, err := scanApiKey(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		apiKeys = append(apiKeys, key)
	}
	return apiKeys, rows.Err()
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) (int64, error) {
	query := `
		INSERT INTO api_keys (user_id, role, key_prefix, key_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	var id int64
	err := r.db.QueryRowContext(ctx, query, apiKey.UserID, apiKey.Role, apiKey.Prefix, apiKey.KeyHash).
		Scan(&id, &apiKey.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *apiKeyRepository) CheckByUserID(ctx context.Context, keyID, userID int64) (bool, error) {
	query := "SELECT 1 FROM api_keys WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, keyID, userID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = $1 WHERE id = $2", at, id)
	return err
}

func (r *apiKeyRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
