// Package authz decides whether an actor may touch an object. Every
// authorizable entity resolves its own owner; Authorize compares that owner
// with the acting identity and denies on anything else.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/apptrack/internal/apperr"
)

// Actor is the authenticated identity of a request.
type Actor struct {
	ID      string
	Email   string
	IsStaff bool
}

// Lookup resolves ownership across one level of indirection.
type Lookup interface {
	ApplicationOwner(ctx context.Context, applicationID string) (string, error)
}

// Resource is implemented by every entity that can be authorized.
type Resource interface {
	ResolveOwner(ctx context.Context, l Lookup) (string, error)
}

// ErrNoOwner is returned by resolvers when the owner cannot be determined.
var ErrNoOwner = errors.New("owner could not be resolved")

// Authorize returns nil when actor owns r. Non-owners get apperr.ErrNotFound
// so the existence of other users' records is not revealed.
func Authorize(ctx context.Context, l Lookup, actor Actor, r Resource) error {
	if actor.ID == "" {
		return apperr.ErrUnauthenticated
	}
	if r == nil {
		return apperr.ErrNotFound
	}

	owner, err := r.ResolveOwner(ctx, l)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, ErrNoOwner) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("resolve owner: %w", err)
	}
	if owner == "" || owner != actor.ID {
		return apperr.ErrNotFound
	}
	return nil
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}
