package middlewares

import (
	"context"
	"net/http"
	"time"
)

// DefaultTimeout is the recommended overall deadline for inbound handlers (§5).
const DefaultTimeout = 30 * time.Second

// Timeout returns middleware that bounds request context lifetime.
// If the handler does not complete within the timeout, the request context
// is cancelled; handlers that perform a single transactional DB round-trip
// per §5 ("use transactions, not application-level compensation") abort
// cleanly instead of leaving a half-claimed job.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
