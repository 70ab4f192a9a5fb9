package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/physiopost/internal/models"
)

type PublishAttemptRepository interface {
	Create(ctx context.Context, pa *models.PublishAttempt) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error)
}

type publishAttemptRepository struct {
	db *sql.DB
}

func NewPublishAttemptRepository(db *sql.DB) PublishAttemptRepository {
	return &publishAttemptRepository{db: db}
}

func (r *publishAttemptRepository) Create(ctx context.Context, pa *models.PublishAttempt) (int64, error) {
	query := `
		INSERT INTO publish_attempts (user_id, post_id, account_id, trigger, simulated, external_post_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, pa.UserID, pa.PostID, pa.AccountID, pa.Trigger,
		pa.Simulated, pa.ExternalPostID, pa.ErrorMessage).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publishAttemptRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error) {
	query := `
		SELECT id, user_id, post_id, account_id, trigger, simulated, external_post_id, error_message, created_at
		FROM publish_attempts
		WHERE post_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.PublishAttempt
	for rows.Next() {
		var pa models.PublishAttempt
		var accountID sql.NullInt64
		err := rows.Scan(&pa.ID, &pa.UserID, &pa.PostID, &accountID, &pa.Trigger, &pa.Simulated,
			&pa.ExternalPostID, &pa.ErrorMessage, &pa.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if accountID.Valid {
			pa.AccountID = &accountID.Int64
		}
		attempts = append(attempts, &pa)
	}
	return attempts, rows.Err()
}
