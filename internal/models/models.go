package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	Plan30d = "30d"
	Plan90d = "90d"
)

type Admin struct {
	ID           string    `gorm:"primaryKey;size:36"  json:"id"`
	Email        string    `gorm:"unique;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"            json:"-"`
	Role         string    `gorm:"not null"            json:"role"`
	Level        int       `gorm:"not null;default:1"  json:"level"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *Admin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	ID        string    `gorm:"primaryKey;size:36"  json:"id"`
	Username  string    `gorm:"not null"            json:"username"`
	Email     string    `gorm:"unique;not null"     json:"email"`
	LicenseID *string   `gorm:"size:36;index"       json:"license_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// License rows are "available" while UserID is null and "in use" once a user
// claims them. An in-use license must never be deleted.
type License struct {
	ID         string    `gorm:"primaryKey;size:36"  json:"id"`
	LicenseKey string    `gorm:"unique;not null"     json:"license_key"`
	PlanType   string    `gorm:"not null"            json:"plan_type"`
	UserID     *string   `gorm:"size:36;index"       json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `gorm:"not null"            json:"expires_at"`
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// RevokedToken stores the sha256 digest of a raw token, never the token itself.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey"      json:"id"`
	TokenHash string    `gorm:"unique;not null" json:"token_hash"`
	ExpiresAt time.Time `gorm:"not null;index"  json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID           uint      `gorm:"primaryKey"     json:"id"`
	AdminID      *string   `gorm:"size:36;index"  json:"admin_id"`
	Action       string    `gorm:"not null;index" json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Details      string    `json:"details"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}
