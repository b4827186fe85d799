package telemetry

import "context"

// conversationIDKey is the context key type used to store a conversation ID.
type conversationIDKey struct{}

// WithConversationID returns a child context that carries id.
// If ctx is nil, context.Background() is used.
func WithConversationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, conversationIDKey{}, id)
}

// ConversationIDFromContext returns the conversation ID from ctx, if present.
// Returns "", false if the value is missing or not a non-empty string.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(conversationIDKey{}).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
