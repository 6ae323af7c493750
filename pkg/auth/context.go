package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	userContextKey      contextKey = "auth.user"
	requestIDContextKey contextKey = "auth.request_id"
)

// WithUser attaches the resolved User to ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated User, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey).(*User)
	return u, ok
}

// Actor resolves the audit actor for ctx: the authenticated username, or
// "anonymous" per spec.md's Actor definition.
func Actor(ctx context.Context) string {
	if u, ok := UserFromContext(ctx); ok {
		return u.Username
	}
	return "anonymous"
}

// RequestIDMiddleware stamps every request with an X-Request-ID, reusing a
// client-supplied one if present, mirroring into the response header and
// into ctx via the same contextKey pattern WithUser/UserFromContext use.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id RequestIDMiddleware stamped onto ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
