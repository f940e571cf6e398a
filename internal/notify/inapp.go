package notify

import (
	"context"
	"fmt"

	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// InAppTransport stores the message in the user's notification inbox.
type InAppTransport struct {
	repo repository.NotificationRepo
}

func NewInAppTransport(repo repository.NotificationRepo) *InAppTransport {
	return &InAppTransport{repo: repo}
}

func (t *InAppTransport) Send(ctx context.Context, msg Message) error {
	if msg.UserID == "" {
		return fmt.Errorf("%w: message has no user", ErrPermanent)
	}
	n := &models.Notification{UserID: msg.UserID, Title: msg.Subject, Message: msg.Text}
	if err := t.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}
