package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/langchou/carkeep/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// UserRepository 用户数据仓库
type UserRepository struct {
	db *DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, user_id, COALESCE(username, ''), COALESCE(name, ''), COALESCE(bio, ''), COALESCE(avatar, ''), public, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.UserID,
		&user.Username,
		&user.Name,
		&user.Bio,
		&user.Avatar,
		&user.Public,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// Create 创建用户（首次认证时调用）
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, user_id, name, bio, avatar, public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now()
	_, err := r.db.Pool.Exec(ctx, query,
		user.ID,
		user.UserID,
		user.Name,
		user.Bio,
		user.Avatar,
		user.Public,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	user.CreatedAt = now
	return nil
}

// GetByUserID 通过认证 subject 获取用户
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, query, userID))
}

// CountByUsername 统计用户名占用数量
func (r *UserRepository) CountByUsername(ctx context.Context, username string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count username: %w", err)
	}
	return count, nil
}

// SetUsername 设置用户名
func (r *UserRepository) SetUsername(ctx context.Context, userID, username string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET username = $1 WHERE user_id = $2`, username, userID)
	if err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

// UpdateProfile 更新资料（姓名、简介、可见性）
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, name, bio string, public bool) error {
	query := `UPDATE users SET name = $1, bio = $2, public = $3 WHERE user_id = $4`
	_, err := r.db.Pool.Exec(ctx, query, name, bio, public, userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// SetAvatar 更新头像 URL
func (r *UserRepository) SetAvatar(ctx context.Context, userID, avatarURL string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET avatar = $1 WHERE user_id = $2`, avatarURL, userID)
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	return nil
}

// SearchByUsername 用户名前缀搜索
func (r *UserRepository) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username IS NOT NULL AND username ILIKE $1 || '%'
		ORDER BY username
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, nil
}
