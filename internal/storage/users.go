package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ykurmanov/marketd/internal/authcore"
)

// UserStore implements authcore.UserStore on the users table and adds
// account creation for the registration surface.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore wraps a connected GORM handle.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// NewUserParams carries the fields of a registration request. IsAdmin is
// never mapped from request payloads; it exists for seed scripts.
type NewUserParams struct {
	Email        string
	Username     string
	Phone        string
	PasswordHash string
	FullName     string
	IsSeller     bool
	IsAdmin      bool
}

// Create inserts a new user. Duplicate email, username, or phone surfaces
// authcore.ErrConflict.
func (store *UserStore) Create(ctx context.Context, params NewUserParams) (*authcore.User, error) {
	record := userRecord{
		Email:        strings.ToLower(strings.TrimSpace(params.Email)),
		Username:     strings.TrimSpace(params.Username),
		Phone:        strings.TrimSpace(params.Phone),
		PasswordHash: params.PasswordHash,
		FullName:     strings.TrimSpace(params.FullName),
		IsSeller:     params.IsSeller,
		IsAdmin:      params.IsAdmin,
	}
	var duplicates int64
	err := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("email = ? OR username = ? OR phone = ?", record.Email, record.Username, record.Phone).
		Count(&duplicates).Error
	if err != nil {
		return nil, fmt.Errorf("user_store.create.lookup: %w", err)
	}
	if duplicates > 0 {
		return nil, authcore.ErrConflict
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, authcore.ErrConflict
		}
		return nil, fmt.Errorf("user_store.create: %w", err)
	}
	return record.toUser(), nil
}

// ByID looks a user up by primary key.
func (store *UserStore) ByID(ctx context.Context, userID string) (*authcore.User, error) {
	return store.lookup(ctx, "id = ?", userID)
}

// ByEmail looks a user up by exact email.
func (store *UserStore) ByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return store.lookup(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// ByUsername looks a user up by exact username.
func (store *UserStore) ByUsername(ctx context.Context, username string) (*authcore.User, error) {
	return store.lookup(ctx, "username = ?", strings.TrimSpace(username))
}

// ByPhone looks a user up by exact phone number.
func (store *UserStore) ByPhone(ctx context.Context, phone string) (*authcore.User, error) {
	return store.lookup(ctx, "phone = ?", strings.TrimSpace(phone))
}

// UpdateLastLogin stamps the user's last successful login.
func (store *UserStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", userID).
		Update("last_login", at)
	if result.Error != nil {
		return fmt.Errorf("user_store.last_login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (store *UserStore) lookup(ctx context.Context, query string, argument string) (*authcore.User, error) {
	if argument == "" {
		return nil, authcore.ErrUserNotFound
	}
	var record userRecord
	err := store.db.WithContext(ctx).Where(query, argument).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_store.lookup: %w", err)
	}
	return record.toUser(), nil
}
