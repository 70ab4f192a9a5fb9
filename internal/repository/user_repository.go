package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/physiopost/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, bool, error)
	Create(ctx context.Context, tx *sql.Tx, user *models.User) (int64, error)
	// UpdateProfile refreshes the Google profile fields. Role is left alone.
	UpdateProfile(ctx context.Context, user *models.User) error
	Remove(ctx context.Context, id int64) error
}

const userColumns = "id, google_id, email, name, profile_picture, role, created_at, updated_at"

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user     models.User
		googleID sql.NullString
		picture  sql.NullString
	)
	err := row.Scan(&user.ID, &googleID, &user.Email, &user.Name, &picture, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.GoogleID = googleID.String
	user.ProfilePicture = picture.String
	return &user, nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg any) (*models.User, bool, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return user, true, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	return r.getOne(ctx, "email = $1", email)
}

// Create inserts the user with its role; an empty role is stored as owner.
func (r *userRepository) Create(ctx context.Context, tx *sql.Tx, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (google_id, email, name, profile_picture, role)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'owner'))
		RETURNING id, role, created_at`

	args := []any{user.GoogleID, user.Email, user.Name, user.ProfilePicture, user.Role}

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, args...)
	} else {
		row = r.db.QueryRowContext(ctx, query, args...)
	}

	var id int64
	if err := row.Scan(&id, &user.Role, &user.CreatedAt); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	user.UpdatedAt = user.CreatedAt
	return id, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET google_id = $1,
			name = $2,
			profile_picture = $3,
			updated_at = $4
		WHERE id = $5
	`
	now := time.Now()
	_, err := r.db.ExecContext(ctx, query, user.GoogleID, user.Name, user.ProfilePicture, now, user.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	user.UpdatedAt = now
	return nil
}

func (r *userRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
