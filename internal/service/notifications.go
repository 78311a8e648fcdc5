package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository"
)

// Page bounds for the notification feed.
const (
	DefaultNotificationPage = 50
	MaxNotificationPage     = 200
)

// NotificationService reads the in-app notification feed written by the sweep.
type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
}

// NotificationServiceImpl implements NotificationService.
type NotificationServiceImpl struct {
	notifications repository.NotificationRepository
}

// NewNotificationService constructs the feed reader.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationServiceImpl {
	return &NotificationServiceImpl{notifications: notifications}
}

// List returns the newest notifications of userID, newest first.
func (s *NotificationServiceImpl) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrValidation
	}
	switch {
	case limit <= 0:
		limit = DefaultNotificationPage
	case limit > MaxNotificationPage:
		limit = MaxNotificationPage
	}
	return s.notifications.ListForUser(ctx, userID, limit)
}
