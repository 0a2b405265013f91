package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/sirupsen/logrus"
)

// CreateAPIKey stores a new active key.
func (r *Repository) CreateAPIKey(ctx context.Context, key, description string) (models.APIKey, error) {
	apiKey := models.APIKey{
		Key:         key,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}
	p := r.dialect.placeholder
	query := fmt.Sprintf(`
		INSERT INTO api_keys (key, description, created_at, is_active)
		VALUES (%s, %s, %s, %s)
		RETURNING id
	`, p(1), p(2), p(3), p(4))
	err := r.DB.QueryRowContext(ctx, query, apiKey.Key, apiKey.Description, apiKey.CreatedAt, true).Scan(&apiKey.ID)
	if err != nil {
		return models.APIKey{}, &StorageError{Op: "create api key", Err: err}
	}
	return apiKey, nil
}

// DeleteAPIKey removes a key by id, returning ErrNotFound when nothing matched.
func (r *Repository) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM api_keys WHERE id = "+r.dialect.placeholder(1), id)
	if err != nil {
		return &StorageError{Op: "delete api key", Err: err}
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &StorageError{Op: "delete api key", Err: err}
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, key, description, created_at, last_used_at, is_active
		FROM api_keys
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, &StorageError{Op: "list api keys", Err: err}
	}
	defer rows.Close()

	apiKeys := make([]models.APIKey, 0)
	for rows.Next() {
		var (
			apiKey      models.APIKey
			description sql.NullString
			lastUsedAt  sql.NullTime
		)
		if err := rows.Scan(&apiKey.ID, &apiKey.Key, &description, &apiKey.CreatedAt, &lastUsedAt, &apiKey.IsActive); err != nil {
			logrus.WithError(err).Warn("Skipping unreadable api key row")
			continue
		}
		apiKey.Description = description.String
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			apiKey.LastUsedAt = &t
		}
		apiKeys = append(apiKeys, apiKey)
	}
	return apiKeys, rows.Err()
}

// ValidateAPIKey reports whether key is active and stamps its last use.
func (r *Repository) ValidateAPIKey(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	p := r.dialect.placeholder
	result, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		UPDATE api_keys
		SET last_used_at = %s
		WHERE key = %s AND is_active = %s
	`, p(1), p(2), p(3)), time.Now().UTC(), key, true)
	if err != nil {
		logrus.WithError(err).Error("Failed to validate api key")
		return false
	}
	n, err := result.RowsAffected()
	return err == nil && n == 1
}
