package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"room-chat-service/internal/models"
)

const userColumns = `id, nickname, profile_color, profile_image, created_at, last_active_at`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	q sqlx.ExtContext
}

// NewUserRepo constructs a UserRepo over a pool or an open transaction.
func NewUserRepo(q sqlx.ExtContext) *UserRepo {
	return &UserRepo{q: q}
}

// CreateUser inserts user and fills in its id and timestamps.
func (r *UserRepo) CreateUser(ctx context.Context, user *models.User) error {
	err := r.q.QueryRowxContext(ctx,
		`INSERT INTO users (nickname, profile_color, profile_image, created_at, last_active_at)
         VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id, created_at, last_active_at`,
		user.Nickname, user.ProfileColor, user.ProfileImage,
	).Scan(&user.ID, &user.CreatedAt, &user.LastActiveAt)
	if isUniqueViolation(err) {
		return ErrNicknameTaken
	}
	return mapErr(err, ErrUserNotFound)
}

func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.q, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return user, mapErr(err, ErrUserNotFound)
}

func (r *UserRepo) GetUserByNickname(ctx context.Context, nickname string) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.q, &user, `SELECT `+userColumns+` FROM users WHERE nickname=$1`, nickname)
	return user, mapErr(err, ErrUserNotFound)
}

func (r *UserRepo) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE nickname=$1)`, nickname)
	return exists, mapErr(err, ErrUserNotFound)
}

// UpdateUser writes the mutable profile fields.
func (r *UserRepo) UpdateUser(ctx context.Context, user models.User) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET profile_color=$2, profile_image=$3, last_active_at=$4 WHERE id=$1`,
		user.ID, user.ProfileColor, user.ProfileImage, user.LastActiveAt)
	if err != nil {
		return mapErr(err, ErrUserNotFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) ListUsersByIDs(ctx context.Context, userIDs []int64) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) ORDER BY id`, userIDs)
	if err != nil {
		return nil, err
	}
	var users []models.User
	err = sqlx.SelectContext(ctx, r.q, &users, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return users, mapErr(err, ErrUserNotFound)
}
