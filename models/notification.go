package models

import "time"

// Notification is an in-app message for an internal user.
type Notification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"-" gorm:"size:36;not null;index"`
	Title     string    `json:"title" gorm:"not null"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimitHit backs the shared-store rate limiter.
type RateLimitHit struct {
	ID          uint   `gorm:"primaryKey"`
	Bucket      string `gorm:"size:160;not null;index:idx_rate_limit_hits_bucket_at,priority:1"`
	HitAtMillis int64  `gorm:"not null;index:idx_rate_limit_hits_bucket_at,priority:2"`
}
