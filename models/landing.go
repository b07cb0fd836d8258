package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Landing is a user's public link-in-bio page.
// Views is the denormalized lifetime view total; like Link.Visited it is
// updated best-effort and independently of the day-bucketed counters.
type Landing struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Slug      string         `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	Title     string         `gorm:"size:255" json:"title"`
	Views     int64          `gorm:"not null;default:0" json:"views"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (l *Landing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
