package notify

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the log instead of sending them. It is the
// development mail backend.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("notification", "to", msg.To, "user_id", msg.UserID, "subject", msg.Subject, "text", msg.Text)
	return nil
}
