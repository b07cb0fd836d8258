package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link types that never receive clicks and are excluded from rankings.
const LinkTypeHeader = "header"

// Link is a single entry on a landing page.
// Visited is a denormalized lifetime click total maintained by the stats
// recorder; it is a display cache and may drift from the summed day buckets.
type Link struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	LandingID string         `gorm:"index;size:36;not null" json:"landing_id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	URL       string         `gorm:"size:2048" json:"url"`
	Type      string         `gorm:"size:32;default:'link'" json:"type"`
	State     bool           `gorm:"default:true" json:"state"`
	Position  int            `gorm:"default:0" json:"position"`
	Visited   int64          `gorm:"not null;default:0" json:"visited"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Clickable reports whether the link participates in click tracking and
// rankings. Header rows are visual separators only.
func (l *Link) Clickable() bool {
	return l.State && l.Type != LinkTypeHeader
}
