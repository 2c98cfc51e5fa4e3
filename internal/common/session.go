package common

import "context"

type ctxKey string

const sessionKey ctxKey = "cart/session-id"

// WithSession stores the cart session identifier on the provided context.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// Session extracts the cart session identifier from the context if present.
func Session(ctx context.Context) (string, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
