// Package session authenticates requests from the access token and carries
// the resolved caller in the request context.
package session

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/response"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	User entity.PublicUser
}

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the caller stored by Require.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

type Verifier interface {
	VerifyAccessToken(s string) (*token.AccessClaims, error)
}

// Resolver loads the current state of a user.
type Resolver interface {
	CurrentUser(ctx context.Context, id int64) (entity.PublicUser, error)
}

type Middleware struct {
	verifier Verifier
	resolver Resolver
	logger   *zap.SugaredLogger
}

func NewMiddleware(v Verifier, r Resolver, logger *zap.SugaredLogger) *Middleware {
	return &Middleware{verifier: v, resolver: r, logger: logger}
}

// Require rejects requests without a valid access token whose subject still
// exists. It never changes token state.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessToken(r)
		if raw == "" {
			response.Error(w, m.logger, apperror.Unauthorized("unauthorized request"))
			return
		}
		claims, err := m.verifier.VerifyAccessToken(raw)
		if err != nil {
			m.logger.Debugw("access token rejected", "err", err)
			response.Error(w, m.logger, err)
			return
		}
		u, err := m.resolver.CurrentUser(r.Context(), claims.UserID)
		if err != nil {
			if apperror.Is(err, apperror.KindNotFound) {
				err = apperror.Unauthorized("invalid access token")
			}
			response.Error(w, m.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{User: u})))
	})
}

// accessToken reads the cookie first and falls back to the bearer header.
func accessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	t, _ := bearerToken(r.Header.Get("Authorization"))
	return t
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
