package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/auctionhouse-backend/api/responses"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

type connectLimiter interface {
	ConnectAllow(ctx context.Context, clientID string, limit int64, window time.Duration) (bool, error)
}

// ConnectRateLimit caps the live feed connections one client address may
// open per window. A zero limit or window disables it.
func ConnectRateLimit(store connectLimiter, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || limit <= 0 || window <= 0 {
			return next
		}
		retryAfter := strconv.Itoa(int(window.Round(time.Second) / time.Second))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := clientIP(r)

			allowed, err := store.ConnectAllow(ctx, client, limit, window)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connect rate limiter"))
			case !allowed:
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"client_ip":      client,
						"limit":          limit,
						"window_seconds": retryAfter,
					}), "livefeed connect rate limited")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many connection attempts"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// clientIP is the first well-formed address among the leftmost
// X-Forwarded-For hop, X-Real-IP, and the socket peer.
func clientIP(r *http.Request) string {
	candidates := []string{
		strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0],
		r.Header.Get("X-Real-IP"),
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	}
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(c)); err == nil {
			return addr.Unmap().String()
		}
	}
	return r.RemoteAddr
}
