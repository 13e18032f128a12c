package ledger

import "context"

type ctxKey string

const ctxActorKey ctxKey = "actor"

// DefaultActor is recorded on movements when the context carries no actor
const DefaultActor = "system"

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxActorKey, actor)
}

func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxActorKey).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}
