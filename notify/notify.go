// Package notify informs internal users about signature outcomes.
package notify

import (
	"context"
	"fmt"
	"sync"

	"esign-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier is fire-and-forget. Implementations swallow and log failures.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, link string)
}

// Store persists notifications into the in-app inbox.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "notify"))}
}

func (s *Store) Notify(ctx context.Context, userID, title, message, link string) {
	n := models.Notification{UserID: userID, Title: title, Message: message, Link: link}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		s.logger.Warn("notification not stored", zap.String("user_id", userID), zap.Error(err))
	}
}

// List returns the newest notifications of userID.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	return rows, nil
}

// MarkRead flags one notification of userID as read.
func (s *Store) MarkRead(ctx context.Context, userID string, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, fmt.Errorf("notify: mark read: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Async hands each notification to its own goroutine so the caller never
// waits on, or fails because of, delivery.
type Async struct {
	next   Notifier
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewAsync(next Notifier, logger *zap.Logger) *Async {
	return &Async{next: next, logger: logger.With(zap.String("component", "notify"))}
}

func (a *Async) Notify(ctx context.Context, userID, title, message, link string) {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("notifier panicked", zap.Any("panic", r), zap.String("user_id", userID))
			}
		}()
		a.next.Notify(ctx, userID, title, message, link)
	}()
}

// Wait blocks until in-flight notifications finish.
func (a *Async) Wait() { a.wg.Wait() }
