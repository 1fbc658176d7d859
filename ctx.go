package identity

import "context"

var tenantCtxKey = &contextKey{"tenant"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithTenantID sets the current tenant in the given context
func WithTenantID(ctx context.Context, tenantID int) context.Context {
	return context.WithValue(ctx, tenantCtxKey, tenantID)
}

// TenantIDFromContext returns the current tenant.
func TenantIDFromContext(ctx context.Context) (int, bool) {
	tenantID, ok := ctx.Value(tenantCtxKey).(int)
	return tenantID, ok
}

// WithActor sets the actor performing lifecycle actions
func WithActor(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the actor, or a system actor when none was set.
func ActorFromContext(ctx context.Context) ActorRef {
	actor, _ := ctx.Value(actorCtxKey).(ActorRef)
	return actor.orSystem()
}
