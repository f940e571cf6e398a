package applications

import (
	"context"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
)

// PurgeHandler returns the applications.purge job handler.
func (s *Service) PurgeHandler(retention time.Duration) func(ctx context.Context, j *models.BackgroundJob) error {
	return func(ctx context.Context, _ *models.BackgroundJob) error {
		_, err := s.Purge(ctx, retention)
		return err
	}
}
