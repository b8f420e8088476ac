package logger

import "context"

type contextKey struct{}

var messageIDKey = contextKey{}

// WithMessageID tags ctx with the message_id of the inbound frame being
// served, so logs emitted anywhere below the broker can be tied back to it.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageID returns the frame id set by WithMessageID, or "" outside a frame.
func MessageID(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey).(string)
	return id
}
