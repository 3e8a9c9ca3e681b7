package session

import (
	"net/http"
	"time"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/token"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Cookies writes the token pair as http-only cookies.
type Cookies struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c Cookies) Set(w http.ResponseWriter, pair token.Pair) {
	http.SetCookie(w, c.cookie(AccessCookie, pair.AccessToken, int(c.AccessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshCookie, pair.RefreshToken, int(c.RefreshTTL.Seconds())))
}

// Clear expires both cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookie, "", -1))
}

func (c Cookies) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// RefreshTokenFromCookie returns the refresh cookie value, if any.
func RefreshTokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
