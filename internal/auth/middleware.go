package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "researchtools/internal/errors"
	"researchtools/internal/store"
)

// AuthMiddleware resolves the user from a bearer token, then from the session
// cookie, and rejects the request with a generic 401 when neither works.
func (as *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := as.resolveUser(r); u != nil {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			return
		}
		apperrors.SendError(w, apperrors.NewAuthenticationError(ErrInvalidCredentials.Error()))
	})
}

// OptionalAuthMiddleware adds the user to the context when authentication is present
func (as *AuthService) OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := as.resolveUser(r); u != nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func (as *AuthService) resolveUser(r *http.Request) *store.User {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		userID, err := as.ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
		if err == nil {
			if u := as.activeUser(r.Context(), userID); u != nil {
				return u
			}
		} else {
			as.logger.Debug("bearer token rejected", zap.Error(err))
		}
	}

	session, err := as.sessionStore.Get(r, sessionName)
	if err == nil {
		if userID, ok := session.Values["user_id"].(string); ok {
			return as.activeUser(r.Context(), userID)
		}
	}
	return nil
}

func (as *AuthService) activeUser(ctx context.Context, id string) *store.User {
	u, err := as.repo.GetUser(ctx, id)
	if err != nil || !u.IsActive {
		return nil
	}
	return u
}

// RequireCapability rejects users whose role lacks c with 403. It must run
// after AuthMiddleware.
func RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := GetUserFromContext(r.Context())
			if !ok {
				apperrors.SendError(w, apperrors.NewAuthenticationError(ErrInvalidCredentials.Error()))
				return
			}
			if !Role(u.Role).Has(c) {
				apperrors.SendError(w, apperrors.NewAuthorizationError("role "+u.Role+" lacks the "+string(c)+" capability"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser stores u in ctx
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// GetUserFromContext retrieves the user from request context
func GetUserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok
}
