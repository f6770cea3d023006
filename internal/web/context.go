package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// WithRequestMetadata adds client IP and User-Agent to ctx for the file
// registry.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.UserAgent())
}

// clientIP is RemoteAddr without the port, as rewritten by TrustedRealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
