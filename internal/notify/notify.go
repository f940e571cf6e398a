// Package notify renders reminder messages and sends them over the
// configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/apptrack/internal/models"
)

// ErrPermanent marks a delivery failure that will not succeed on retry, such
// as a rejected recipient. Transports wrap it; anything else is transient.
var ErrPermanent = errors.New("permanent delivery failure")

// Message is a rendered notification for one user.
type Message struct {
	UserID  string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a message on one channel.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Router picks the transport for a reminder channel.
type Router map[models.Channel]Transport

func (r Router) Send(ctx context.Context, ch models.Channel, msg Message) error {
	t, ok := r[ch]
	if !ok || t == nil {
		return fmt.Errorf("%w: no transport for channel %q", ErrPermanent, ch)
	}
	return t.Send(ctx, msg)
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
