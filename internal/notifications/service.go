// Package notifications serves the in-app inbox filled by the notification
// reminder channel.
package notifications

import (
	"context"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	repo   repository.NotificationRepo
	lookup authz.Lookup
}

func NewService(repo repository.NotificationRepo, lookup authz.Lookup) *Service {
	return &Service{repo: repo, lookup: lookup}
}

// List returns actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor authz.Actor, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if actor.ID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset = max(offset, 0)
	return s.repo.ListNotifications(ctx, actor.ID, unreadOnly, limit, offset)
}

// MarkRead marks one of actor's notifications as read.
func (s *Service) MarkRead(ctx context.Context, actor authz.Actor, id string) (*models.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.lookup, actor, n); err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	if err := s.repo.MarkNotificationRead(ctx, id); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}
