package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithClient records the uploading client so it is kept with the
// file registration.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// clientFromContext returns the values stored by ContextWithClient.
func clientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyIPAddress).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}
