package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the coarse permission tag on an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is the identity record behind every user of the service.
type Account struct {
	ID                  uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Name                string     `json:"name" gorm:"size:255;not null"`
	Email               string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash        string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role                Role       `json:"role" gorm:"size:16;not null;default:user"`
	ResetToken          *string    `json:"-" gorm:"size:512;index"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// BeforeCreate sets UUID and default role before creating the record.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	return nil
}

// HasPendingReset reports whether a reset token is stored and still valid at now.
func (a *Account) HasPendingReset(now time.Time) bool {
	return a.ResetToken != nil && a.ResetTokenExpiresAt != nil && now.Before(*a.ResetTokenExpiresAt)
}

// AccountSummary is the outward projection used by administrative listings.
type AccountSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary projects the account onto its listing view.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}
