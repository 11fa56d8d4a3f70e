package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sellerdesk/api/internal/platform/httpx"
	"github.com/sellerdesk/api/internal/platform/requestctx"
)

// storeIDHeader carries the tenant scope of every API request.
const storeIDHeader = "X-Store-Id"

// StoreScopeMiddleware requires the tenant header and stashes the store id in
// the request context for handlers and logging.
func StoreScopeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeID := strings.TrimSpace(r.Header.Get(storeIDHeader))
			if storeID == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("store_scope_required", "X-Store-Id header is required", http.StatusBadRequest))
				return
			}
			ctx := requestctx.WithStoreID(r.Context(), storeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles requests per store (falling back to client IP
// for unscoped routes) over a one-minute window.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	limiter := newStoreRateLimiter(perMinute, time.Minute, nil)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestctx.StoreID(r.Context())
			if key == "" {
				key = strings.TrimSpace(r.Header.Get(storeIDHeader))
			}
			if key == "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				} else {
					key = r.RemoteAddr
				}
			}
			if !limiter.Allow(key) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
