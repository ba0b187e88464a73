package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/memcsv/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, clientIP(r), r.UserAgent())
}

// clientIP strips the port from RemoteAddr, which TrustedRealIP has already
// rewritten when the request came through a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
