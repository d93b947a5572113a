package shared

import "context"

// Actor identifies the authenticated employee performing a request. The
// gateway in front of this service authenticates and injects it; the core only
// consumes it for role gating and audit attribution.
type Actor struct {
	EmployeeID int64
	Role       string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
