package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/physiopost/internal/models"
)

type InsightRepository interface {
	ListRecentPublished(ctx context.Context, userID int64, limit int) ([]models.EngagementSample, error)
	Upsert(ctx context.Context, insight *models.PostInsight) error
}

type insightRepository struct {
	db *sql.DB
}

func NewInsightRepository(db *sql.DB) InsightRepository {
	return &insightRepository{db: db}
}

// ListRecentPublished returns engagement for the user's latest published
// posts. The publish hour is the scheduled time when there was one.
func (r *insightRepository) ListRecentPublished(ctx context.Context, userID int64, limit int) ([]models.EngagementSample, error) {
	query := `
		SELECT p.id, COALESCE(p.scheduled_time, p.updated_at),
			COALESCE(i.likes, 0), COALESCE(i.comments, 0), COALESCE(i.saves, 0)
		FROM posts p
		LEFT JOIN post_insights i ON i.post_id = p.id
		WHERE p.user_id = $1 AND p.status = $2
		ORDER BY p.updated_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, models.PostStatusPublished, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var samples []models.EngagementSample
	for rows.Next() {
		var s models.EngagementSample
		if err := rows.Scan(&s.PostID, &s.PublishedAt, &s.Likes, &s.Comments, &s.Saves); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (r *insightRepository) Upsert(ctx context.Context, insight *models.PostInsight) error {
	query := `
		INSERT INTO post_insights (post_id, likes, comments, saves, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (post_id) DO UPDATE
		SET likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			saves = EXCLUDED.saves,
			fetched_at = EXCLUDED.fetched_at
	`
	_, err := r.db.ExecContext(ctx, query, insight.PostID, insight.Likes, insight.Comments, insight.Saves, insight.FetchedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
