package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/aosc-dev/buildit/internal/apierr"
	"github.com/aosc-dev/buildit/internal/store"
)

type userKey struct{}

// HashToken returns the stored form of a bearer API token: hex-encoded so
// the result is safe to store in a UTF8 TEXT column (the raw digest is
// arbitrary binary and would fail insertion for most random tokens).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// requireUser resolves the caller's bearer token against the users table and
// stashes the resulting User in the request context. Anonymous callers may
// still read everything per §6; this is only applied to write endpoints.
func (a *API) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			apierr.Respond(w, r, a.logger, apierr.Unauthorisedf("missing bearer token"))
			return
		}
		user, err := a.store.GetUserByTokenHash(r.Context(), HashToken(token))
		if err != nil {
			apierr.Respond(w, r, a.logger, apierr.Unauthorisedf("bad bearer token"))
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next(w, r.WithContext(ctx))
	}
}

func userFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey{}).(*store.User)
	return u
}
