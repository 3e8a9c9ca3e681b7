package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/channel"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/response"
)

const requestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
// Every request carries an X-Request-ID, generated when the client sent none.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative headers for a JSON API that
// issues credentials.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			// HSTS only over TLS; 30 days
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Pinger reports database health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the handlers and settings mounted by RegisterRoutes.
type Deps struct {
	Logger         *zap.SugaredLogger
	Prefix         string
	CORSOrigins    []string
	RequestTimeout time.Duration
	DB             Pinger
	Auth           func(http.Handler) http.Handler
	Users          *user.Handler
	Channels       *channel.Handler
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	prefix := "/" + strings.Trim(d.Prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	// health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				d.Logger.Warnw("health check failed", "err", err)
				response.JSON(w, http.StatusServiceUnavailable, nil, "database unavailable")
				return
			}
		}
		response.JSON(w, http.StatusOK, struct{}{}, "ok")
	})

	public := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+prefix+path, h)
	}
	private := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+prefix+path, d.Auth(h))
	}

	public("POST /register", d.Users.Register)
	public("POST /login", d.Users.Login)
	public("POST /refresh-token", d.Users.RefreshToken)

	private("POST /logout", d.Users.Logout)
	private("POST /change-password", d.Users.ChangePassword)
	private("GET /current-user", d.Users.CurrentUser)
	private("PATCH /update-account", d.Users.UpdateAccount)
	private("PATCH /update-avatar", d.Users.UpdateAvatar)
	private("PATCH /update-cover-image", d.Users.UpdateCoverImage)
	private("GET /channel/{handle}", d.Channels.Profile)
	private("GET /history", d.Users.WatchHistory)

	var handler http.Handler = mux
	if d.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, d.RequestTimeout,
			`{"status":503,"data":null,"message":"request timed out"}`)
	}
	handler = CORSMiddleware(d.CORSOrigins)(handler)

	// wrap with security headers middleware then logging middleware
	return LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(handler))
}

// CORSMiddleware allows credentialed requests from origins.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
