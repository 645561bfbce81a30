package shared

import "context"

type contextKey string

// ActorIDKey carries the authenticated user id through request contexts.
const ActorIDKey contextKey = "actor_id"

// WithActorID stores the acting user on the context.
func WithActorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ActorIDKey, id)
}
