// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"sandplane/internal/auth"
	"sandplane/internal/logger"
	"sandplane/pkg/api"
)

// userKey is the context key for the authenticated user.
type userKey struct{}

// NewContextWithUser returns a context carrying user.
func NewContextWithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userKey{}).(*auth.User)
	return user, ok && user != nil
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}

// Authenticate resolves the bearer token to a user through v and stores
// the user in the request context. Any validation failure is a 401.
func Authenticate(v auth.Validator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeError(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			user, err := v.Validate(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context(), log).Warn("token validation failed", "error", err)
				writeError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := NewContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AnonymousUser is placed in the context when authentication is disabled.
var AnonymousUser = &auth.User{Subject: "anonymous", Name: "anonymous"}

// SkipAuth marks every request as coming from AnonymousUser. Local development only.
func SkipAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContextWithUser(r.Context(), AnonymousUser)))
	})
}
