package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/physiopost/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	TransitionStatus(ctx context.Context, postID int64, from []models.PostStatus, to models.PostStatus) (bool, error)
	SetSchedule(ctx context.Context, postID int64, scheduledAt time.Time, status models.PostStatus, expectedVersion, newVersion int64) (bool, error)
	MarkPublished(ctx context.Context, postID int64, externalPostID string) error
	MarkFailed(ctx context.Context, postID int64, reason string) error
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Post, error)
	Remove(ctx context.Context, id int64) error
}

// ErrStatusNotPublishing is returned when a publish result is recorded for a
// post that is not holding the PUBLISHING guard.
var ErrStatusNotPublishing = errors.New("post is not in PUBLISHING state")

const postColumns = `id, user_id, team_id, title, content, hashtags, format, status, scheduled_time,
	schedule_version, last_error, external_post_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post      models.Post
		teamID    sql.NullInt64
		scheduled sql.NullTime
	)
	err := row.Scan(&post.ID, &post.UserID, &teamID, &post.Title, &post.Content, &post.Hashtags,
		&post.Format, &post.Status, &scheduled, &post.ScheduleVersion, &post.LastError,
		&post.ExternalPostID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		post.TeamID = &teamID.Int64
	}
	if scheduled.Valid {
		t := scheduled.Time
		post.ScheduledTime = &t
	}
	return &post, nil
}

func statusArray(statuses []models.PostStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, team_id, title, content, hashtags, format, status, scheduled_time, schedule_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	args := []any{post.UserID, post.TeamID, post.Title, post.Content, post.Hashtags,
		post.Format, post.Status, post.ScheduledTime, post.ScheduleVersion}

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// TransitionStatus moves the post to `to` only if its current status is one of
// `from`. It reports false when another writer got there first.
func (r *postRepository) TransitionStatus(ctx context.Context, postID int64, from []models.PostStatus, to models.PostStatus) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), postID, statusArray(from))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// SetSchedule stores a new schedule date and version if nobody rescheduled
// the post since expectedVersion was read.
func (r *postRepository) SetSchedule(ctx context.Context, postID int64, scheduledAt time.Time, status models.PostStatus, expectedVersion, newVersion int64) (bool, error) {
	query := `
		UPDATE posts
		SET scheduled_time = $1,
			status = $2,
			schedule_version = $3,
			updated_at = $4
		WHERE id = $5 AND schedule_version = $6 AND status = ANY($7)
	`
	schedulable := []models.PostStatus{models.PostStatusDraft, models.PostStatusPendingApproval, models.PostStatusApproved}

	result, err := r.db.ExecContext(ctx, query, scheduledAt, status, newVersion, time.Now(), postID, expectedVersion, statusArray(schedulable))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, externalPostID string) error {
	query := `
		UPDATE posts
		SET status = $1,
			external_post_id = $2,
			last_error = '',
			updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.releaseGuard(ctx, query, models.PostStatusPublished, externalPostID, time.Now(), postID, models.PostStatusPublishing)
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64, reason string) error {
	query := `
		UPDATE posts
		SET status = $1,
			last_error = $2,
			updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.releaseGuard(ctx, query, models.PostStatusFailed, reason, time.Now(), postID, models.PostStatusPublishing)
}

func (r *postRepository) releaseGuard(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrStatusNotPublishing
	}
	return nil
}

func (r *postRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND external_post_id <> '' AND updated_at >= $2
		ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPublished, since)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
