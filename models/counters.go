package models

import "time"

// LinkClickCounter stores the aggregated click count for one link on one
// calendar day. The unique (link_id, date) index is the concurrency-control
// primitive for the increment-or-create write path: racing creators collide
// on it and fall back to an atomic increment.
type LinkClickCounter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LinkID    string    `gorm:"size:36;index;index:idx_link_clicks_link_date,unique;not null" json:"link_id"`
	Date      time.Time `gorm:"index:idx_link_clicks_link_date,unique;type:date;not null" json:"date"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LandingViewCounter stores the aggregated view count for one landing page
// on one calendar day. Same keying and concurrency rules as LinkClickCounter.
type LandingViewCounter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LandingID string    `gorm:"size:36;index;index:idx_landing_views_landing_date,unique;not null" json:"landing_id"`
	Date      time.Time `gorm:"index:idx_landing_views_landing_date,unique;type:date;not null" json:"date"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
