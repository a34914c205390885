package context

import (
	"context"
)

type contextKey string

const contextKeyActor = contextKey("actor")

// Actor identifies the authenticated user a request acts as.
type Actor struct {
	Name string
	Role string
}

// ActorFromContext extracts the acting user from the context.
// Returns the actor and true if present, or a zero actor and false if not present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKeyActor).(Actor)

	return actor, ok
}

// WithActor creates a new context carrying the acting user.
// This context is used to track the authenticated user throughout a request.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}
