package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ykurmanov/marketd/internal/authcore"
)

type userRecord struct {
	ID           string     `gorm:"column:id;primaryKey;size:36"`
	Email        string     `gorm:"column:email;uniqueIndex;size:255;not null"`
	Username     string     `gorm:"column:username;uniqueIndex;size:100;not null"`
	Phone        string     `gorm:"column:phone;uniqueIndex;size:20;not null"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null"`
	FullName     string     `gorm:"column:full_name;size:255"`
	IsSeller     bool       `gorm:"column:is_seller;not null;default:false"`
	IsAdmin      bool       `gorm:"column:is_admin;not null;default:false"`
	IsVerified   bool       `gorm:"column:is_verified;not null;default:false"`
	LastLogin    *time.Time `gorm:"column:last_login"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (userRecord) TableName() string {
	return "users"
}

func (record *userRecord) BeforeCreate(tx *gorm.DB) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return nil
}

func (record *userRecord) toUser() *authcore.User {
	return &authcore.User{
		ID:           record.ID,
		Email:        record.Email,
		Username:     record.Username,
		Phone:        record.Phone,
		PasswordHash: record.PasswordHash,
		IsSeller:     record.IsSeller,
		IsAdmin:      record.IsAdmin,
		IsVerified:   record.IsVerified,
		LastLogin:    record.LastLogin,
	}
}

type refreshTokenRecord struct {
	TokenHash string     `gorm:"column:token_hash;primaryKey;size:64"`
	UserID    string     `gorm:"column:user_id;size:36;not null;index:idx_refresh_tokens_user_revoked"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index"`
	IsRevoked bool       `gorm:"column:is_revoked;not null;default:false;index:idx_refresh_tokens_user_revoked"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

func (record *refreshTokenRecord) toToken() *authcore.RefreshToken {
	return &authcore.RefreshToken{
		TokenHash: record.TokenHash,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		IsRevoked: record.IsRevoked,
		RevokedAt: record.RevokedAt,
		CreatedAt: record.CreatedAt,
	}
}
