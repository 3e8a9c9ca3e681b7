// Package token issues and verifies the access/refresh JWT pair.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Config holds the signing secrets and lifetimes of both token kinds.
type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// Identity is the subset of a user embedded in an access token.
type Identity struct {
	ID       int64
	Email    string
	Handle   string
	FullName string
}

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	UserID    int64  `json:"_id,string"`
	Email     string `json:"email"`
	Handle    string `json:"handle"`
	FullName  string `json:"fullName"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens.
type RefreshClaims struct {
	UserID    int64  `json:"_id,string"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Manager signs tokens with HS256.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager rejects empty or identical secrets and non-positive lifetimes.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets must be set")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

// IssueAccessToken signs a short-lived token describing id.
func (m *Manager) IssueAccessToken(id Identity) (string, error) {
	now := m.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserID:    id.ID,
		Email:     id.Email,
		Handle:    id.Handle,
		FullName:  id.FullName,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	})
	s, err := tok.SignedString([]byte(m.cfg.AccessSecret))
	if err != nil {
		return "", apperror.Internal("sign access token", err)
	}
	return s, nil
}

// IssueRefreshToken signs a long-lived token for userID. Every call carries a
// fresh jti so two tokens never compare equal.
func (m *Manager) IssueRefreshToken(userID int64) (string, error) {
	now := m.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		UserID:    userID,
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTTL)),
		},
	})
	s, err := tok.SignedString([]byte(m.cfg.RefreshSecret))
	if err != nil {
		return "", apperror.Internal("sign refresh token", err)
	}
	return s, nil
}

// IssuePair signs an access token and a refresh token for the same user.
func (m *Manager) IssuePair(id Identity) (Pair, error) {
	access, err := m.IssueAccessToken(id)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.IssueRefreshToken(id.ID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken checks signature, algorithm, expiry and token type.
func (m *Manager) VerifyAccessToken(s string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(s, claims, m.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != typeAccess {
		return nil, apperror.Unauthorized("invalid access token")
	}
	return claims, nil
}

// VerifyRefreshToken is VerifyAccessToken for refresh tokens.
func (m *Manager) VerifyRefreshToken(s string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(s, claims, m.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenType != typeRefresh {
		return nil, apperror.Unauthorized("invalid refresh token")
	}
	return claims, nil
}

func (m *Manager) parse(s string, claims jwt.Claims, secret string) error {
	_, err := jwt.ParseWithClaims(s, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperror.Wrap(apperror.KindUnauthorized, "token expired", err)
		}
		return apperror.Wrap(apperror.KindUnauthorized, "invalid token", err)
	}
	return nil
}
