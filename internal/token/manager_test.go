package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

func testConfig() Config {
	return Config{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Hour,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    240 * time.Hour,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testConfig())
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty access secret", func(c *Config) { c.AccessSecret = "" }},
		{"empty refresh secret", func(c *Config) { c.RefreshSecret = "" }},
		{"equal secrets", func(c *Config) { c.RefreshSecret = c.AccessSecret }},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *Config) { c.RefreshTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewManager(cfg)
			assert.Error(t, err)
		})
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	id := Identity{ID: 1789, Email: "alice@example.com", Handle: "alice", FullName: "Alice A"}

	s, err := m.IssueAccessToken(id)
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(s)
	require.NoError(t, err)
	assert.Equal(t, int64(1789), claims.UserID)
	assert.Equal(t, "alice", claims.Handle)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice A", claims.FullName)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestRefreshToken_UniquePerIssue(t *testing.T) {
	m := newTestManager(t)
	a, err := m.IssueRefreshToken(7)
	require.NoError(t, err)
	b, err := m.IssueRefreshToken(7)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	claims, err := m.VerifyRefreshToken(a)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.NotEmpty(t, claims.ID)
}

func TestVerify_RejectsCrossedTokens(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(Identity{ID: 3, Handle: "bob"})
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(pair.RefreshToken)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))

	_, err = m.VerifyRefreshToken(pair.AccessToken)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
}

func TestVerify_WrongTypeSameSecret(t *testing.T) {
	m := newTestManager(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserID:    3,
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	s, err := tok.SignedString([]byte(testConfig().AccessSecret))
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(s)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
}

func TestVerify_Expired(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	s, err := m.IssueAccessToken(Identity{ID: 1})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyAccessToken(s)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	m := newTestManager(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		UserID:    1,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(s)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))

	tok = jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{
		UserID:    1,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	s, err = tok.SignedString([]byte(testConfig().AccessSecret))
	require.NoError(t, err)
	_, err = m.VerifyAccessToken(s)
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
}

func TestVerify_Garbage(t *testing.T) {
	m := newTestManager(t)
	_, err := m.VerifyAccessToken("not-a-token")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	_, err = m.VerifyRefreshToken("")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
}
