// Package router wires HTTP middleware and routes over the standard
// library's http.ServeMux.
package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/account"
	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
	"github.com/wenqu/backend-api-scaffold/internal/rate"
	"github.com/wenqu/backend-api-scaffold/internal/rbac"
	"github.com/wenqu/backend-api-scaffold/pkg/utilities"
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

// RequestIDMiddleware tags every request with a KSUID, echoed in the
// X-Request-Id response header for log correlation.
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

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
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

// RateLimitMiddleware rejects requests over the per-address budget with
// 429 and a Retry-After hint.
func RateLimitMiddleware(limiter *rate.Limiter, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(auth.ClientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				auth.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth validates the Bearer token and stamps the account onto
// the request context.
func RequireAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				auth.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			acct, _, err := svc.ValidateToken(r.Context(), raw)
			if err != nil {
				auth.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAccount(r.Context(), acct)))
		})
	}
}

// RequireRole allows the request through when the authenticated account's
// role clears the weakest role in allowed. Must run inside RequireAuth.
func RequireRole(allowed ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct := auth.AccountFrom(r.Context())
			if acct == nil {
				auth.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			if !rbac.Authorize(acct.Role, allowed...) {
				auth.WriteError(w, auth.ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership allows admins through unconditionally and everyone
// else only when the {id} path segment matches their own account.
func RequireOwnership() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct := auth.AccountFrom(r.Context())
			if acct == nil {
				auth.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
			if err != nil {
				auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
				return
			}
			if !rbac.AuthorizeOwnership(acct.Role, acct.ID, id) {
				auth.WriteError(w, auth.ErrOwnershipDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Deps collects what RegisterRoutes needs to mount the API.
type Deps struct {
	Auth    *auth.Handler
	AuthSvc *auth.Service
	Account *account.Handler
	Limiter *rate.Limiter
	Window  time.Duration
	Logger  *zap.SugaredLogger
}

// RegisterRoutes mounts HTTP handlers using the standard library's
// http.ServeMux and returns the fully wrapped handler chain.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authed := RequireAuth(d.AuthSvc)
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authed(RequireRole(entity.RoleAdmin)(h))
	}
	owned := func(h http.HandlerFunc) http.Handler {
		return authed(RequireOwnership()(h))
	}

	// auth
	mux.HandleFunc("POST /api/v1/auth/register", d.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", d.Auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", d.Auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/reset-password", d.Auth.ResetPassword)
	mux.Handle("POST /api/v1/auth/logout", authed(http.HandlerFunc(d.Auth.Logout)))
	mux.Handle("POST /api/v1/auth/change-password", authed(http.HandlerFunc(d.Auth.ChangePassword)))

	// mini-program
	mux.HandleFunc("POST /api/v1/miniprogram/login", d.Auth.MiniProgramLogin)

	// current account
	mux.Handle("GET /api/v1/users/me", authed(http.HandlerFunc(d.Auth.Me)))

	// account resources: owners and admins
	mux.Handle("GET /api/v1/users/{id}", owned(d.Account.Get))
	mux.Handle("PUT /api/v1/users/{id}", owned(d.Account.UpdateProfile))

	// admin
	mux.Handle("GET /api/admin/users", adminOnly(d.Account.List))
	mux.Handle("GET /api/admin/users/stats", adminOnly(d.Account.Stats))
	mux.Handle("GET /api/admin/users/search", adminOnly(d.Account.Search))
	mux.Handle("PUT /api/admin/users/batch", adminOnly(d.Account.BatchUpdate))
	mux.Handle("GET /api/admin/users/{id}", adminOnly(d.Account.Get))
	mux.Handle("PUT /api/admin/users/{id}/status", adminOnly(d.Account.UpdateStatus))
	mux.Handle("PUT /api/admin/users/{id}/role", adminOnly(d.Account.UpdateRole))
	mux.Handle("DELETE /api/admin/users/{id}", adminOnly(d.Account.Delete))
	mux.Handle("POST /api/admin/users/{id}/restore", adminOnly(d.Account.Restore))

	var handler http.Handler = mux
	if d.Limiter != nil {
		handler = RateLimitMiddleware(d.Limiter, d.Window)(handler)
	}
	handler = SecurityHeadersMiddleware()(handler)
	handler = RequestIDMiddleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	return handler
}
