package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	SessionIDKey contextKey = "session_id"
	ChannelKey   contextKey = "channel"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithChannel tags the context with the surface an invocation arrived through
// (for example "chat" or "mcp_api"). The value ends up on audit records.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}

func GetChannel(ctx context.Context) string {
	if ch, ok := ctx.Value(ChannelKey).(string); ok {
		return ch
	}
	return ""
}

// Attrs returns the request-scoped ids present on ctx as slog attributes.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, slog.String("trace_id", id))
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if ch := GetChannel(ctx); ch != "" {
		attrs = append(attrs, slog.String("channel", ch))
	}
	return attrs
}
