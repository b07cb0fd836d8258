package models

import (
	"time"

	"gorm.io/gorm"
)

// User owns landings and receives the weekly stats digest. Identity and
// credentials are managed by the external auth service; this record only
// carries what the analytics engine needs.
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Email      string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName  string         `gorm:"size:64" json:"first_name"`
	VerifiedAt *time.Time     `json:"verified_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
