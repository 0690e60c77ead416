package ledger

import "context"

type actorKey struct{}

// WithActor attaches the acting user id to ctx. Every ledger write records
// it as CreatedBy.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user id, if any.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

func requireActor(ctx context.Context, op string) (string, error) {
	id, ok := ActorFrom(ctx)
	if !ok {
		return "", &AuthError{Op: op}
	}
	return id, nil
}
