package http

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// ExtractClientIP returns the originating client address. The first
// X-Forwarded-For hop wins, then X-Real-IP, then the connection address
// without its port.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIPFromContext returns the address stored by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware stores the client address in the request context and adds
// it to the request logger, so auth failures, audit lines and the completion
// line written by logger.Requests all carry it.
func ClientIPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)

			// The request logger is updated in place so outer middleware sees the field.
			logger := zerolog.Ctx(ctx)
			if logger != zerolog.DefaultContextLogger && logger.GetLevel() != zerolog.Disabled {
				logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
					return c.Str("client_ip", ip)
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
