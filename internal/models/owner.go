package models

import (
	"context"

	"github.com/garnizeh/apptrack/internal/authz"
)

var (
	_ authz.Resource = (*Application)(nil)
	_ authz.Resource = (*Reminder)(nil)
	_ authz.Resource = (*Attachment)(nil)
	_ authz.Resource = (*StatusHistoryEntry)(nil)
	_ authz.Resource = (*Notification)(nil)
)

func (a *Application) ResolveOwner(_ context.Context, _ authz.Lookup) (string, error) {
	if a.OwnerID == "" {
		return "", authz.ErrNoOwner
	}
	return a.OwnerID, nil
}

func (r *Reminder) ResolveOwner(_ context.Context, _ authz.Lookup) (string, error) {
	if r.UserID == "" {
		return "", authz.ErrNoOwner
	}
	return r.UserID, nil
}

func (a *Attachment) ResolveOwner(ctx context.Context, l authz.Lookup) (string, error) {
	return l.ApplicationOwner(ctx, a.ApplicationID)
}

func (e *StatusHistoryEntry) ResolveOwner(ctx context.Context, l authz.Lookup) (string, error) {
	return l.ApplicationOwner(ctx, e.ApplicationID)
}

func (n *Notification) ResolveOwner(_ context.Context, _ authz.Lookup) (string, error) {
	if n.UserID == "" {
		return "", authz.ErrNoOwner
	}
	return n.UserID, nil
}
