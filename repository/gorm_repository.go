package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osiprototype/backend/models"
	"gorm.io/gorm"
)

// ErrDuplicateUser is returned when a write collides with the unique username
// or email index.
var ErrDuplicateUser = errors.New("username or email already taken")

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Message{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			slog.Warn("Duplicate user rejected", "username", user.Username)
			return fmt.Errorf("%w: %w", ErrDuplicateUser, err)
		}
		slog.Error("Failed to create user", "error", err, "username", user.Username)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.firstUser(ctx, "email = ?", email)
}

func (r *GORMRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.firstUser(ctx, "username = ?", username)
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.firstUser(ctx, "id = ?", id)
}

func (r *GORMRepository) firstUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user", "error", err, "query", query)
		return nil, err
	}
	return &user, nil
}

// GetUsersByRole lists active users of a role ordered by username
func (r *GORMRepository) GetUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Order("username").
		Find(&users).Error
	if err != nil {
		slog.Error("Failed to get users by role", "error", err, "role", role)
		return nil, err
	}
	return users, nil
}

func (r *GORMRepository) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		slog.Error("Failed to get users by IDs", "error", err, "count", len(ids))
		return nil, err
	}
	return users, nil
}

// UpdateUserFields applies a partial update keyed by column name. Zero and nil
// values are written as given.
func (r *GORMRepository) UpdateUserFields(ctx context.Context, user *models.User, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(fields).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			slog.Warn("Duplicate user rejected", "user_id", user.ID)
			return fmt.Errorf("%w: %w", ErrDuplicateUser, err)
		}
		slog.Error("Failed to update user", "error", err, "user_id", user.ID)
		return err
	}
	slog.Info("User updated", "user_id", user.ID, "fields", len(fields))
	return nil
}

func (r *GORMRepository) UpdateProfilePhoto(ctx context.Context, user *models.User, filename string) error {
	return r.UpdateUserFields(ctx, user, map[string]interface{}{"profile_photo": filename})
}

func (r *GORMRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}
