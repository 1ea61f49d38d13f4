package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type ctxKey struct{}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}

// OwnerFromContext returns the owner scope of the authenticated caller, or "".
func OwnerFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.OwnerID
	}
	return ""
}

// RequireOwner rejects requests without a valid bearer token carrying an
// owner_id. onFail writes the rejection so callers control the error format.
func RequireOwner(secret string, onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				onFail(w, r)
				return
			}
			claims, err := ParseAndVerifyHS256(strings.TrimSpace(token), secret, time.Now())
			if err != nil || claims.OwnerID == "" {
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}
