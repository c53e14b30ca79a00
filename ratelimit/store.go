package ratelimit

import (
	"time"

	"esign-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is a database-backed limiter shared by every API instance.
// On storage failure it denies the event.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "ratelimit")), now: time.Now}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}
	now := s.now()
	cutoff := now.Add(-window).UnixMilli()

	allowed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bucket = ? AND hit_at_millis <= ?", key, cutoff).
			Delete(&models.RateLimitHit{}).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.RateLimitHit{}).
			Where("bucket = ? AND hit_at_millis > ?", key, cutoff).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return nil
		}
		allowed = true
		return tx.Create(&models.RateLimitHit{Bucket: key, HitAtMillis: now.UnixMilli()}).Error
	})
	if err != nil {
		s.logger.Error("rate limit store failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return allowed
}
