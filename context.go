package authkit

import "context"

type contextKey int

const clientIPKey contextKey = iota

// WithClientIP attaches the caller's remote address to the context so
// it shows up in audit events. The engine never uses it for decisions.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the address set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
