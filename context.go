package sharekit

import (
	"context"
)

// Context keys for sharekit values.
type contextKey string

const (
	contextKeyUserID    contextKey = "sharekit:user_id"
	contextKeyRequestID contextKey = "sharekit:request_id"
)

// WithUserID adds a user ID to the context. Middleware sets this; handlers
// and extractors read it back.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// GetUserID retrieves the user ID from context.
// Returns empty string if not set.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context, correlating mutation
// events and decision logs with the surrounding request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
