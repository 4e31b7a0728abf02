package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor ID in context.
// The identity layer in front of this service is trusted to have verified it.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor ID from context. Returns false when the
// request carried no actor.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok
}
