package router

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account"
	"github.com/lumenkit/identity-core/internal/passreset"
	"github.com/lumenkit/identity-core/internal/social"
	"github.com/lumenkit/identity-core/internal/token"
	"github.com/lumenkit/identity-core/pkg/utilities"
)

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

// RequestIDMiddleware assigns each request a ksuid and echoes it in
// the X-Request-Id response header.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = utilities.NewKSUID()
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug
// level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"request_id", lrw.Header().Get("X-Request-Id"),
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. It is
// intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware verifies the bearer session token and stores its
// claims on the request context.
func AuthMiddleware(issuer *token.Issuer) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				account.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization header required"})
				return
			}
			claims, err := issuer.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				account.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
				return
			}
			next(w, r.WithContext(token.ContextWithClaims(r.Context(), claims)))
		}
	}
}

// Handlers bundles the endpoint handlers mounted by RegisterRoutes.
type Handlers struct {
	Account *account.Handler
	Social  *social.Handler
	Reset   *passreset.Handler
	Issuer  *token.Issuer
}

// RegisterRoutes mounts HTTP handlers using the standard library's
// http.ServeMux and wraps them with the shared middleware chain.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /identity-api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authed := AuthMiddleware(h.Issuer)

	mux.HandleFunc("POST /identity-api/auth/register", h.Account.Register)
	mux.HandleFunc("POST /identity-api/auth/login", h.Account.Login)
	mux.HandleFunc("POST /identity-api/auth/refresh", h.Account.Refresh)
	mux.HandleFunc("POST /identity-api/auth/logout", h.Account.Logout)
	mux.HandleFunc("GET /identity-api/auth/profile", authed(h.Account.Profile))

	mux.HandleFunc("POST /identity-api/auth/social", h.Social.Authenticate)
	mux.HandleFunc("POST /identity-api/auth/social/connect", authed(h.Social.Connect))

	mux.HandleFunc("POST /identity-api/auth/password/request-reset", h.Reset.RequestReset)
	mux.HandleFunc("POST /identity-api/auth/password/validate-token", h.Reset.ValidateToken)
	mux.HandleFunc("POST /identity-api/auth/password/reset", h.Reset.Reset)

	handler := RequestIDMiddleware()(LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux)))
	return handler
}
