package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	nasotel "nascraft/internal/otel"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type apiError struct {
	Status  int
	Message string
	Code    string
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

const (
	cacheControlNoStore = "no-store, must-revalidate"
	cacheControlNoCache = "no-cache"
)

func setSecurityHeaders(w http.ResponseWriter, cacheControl string) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		headers.Set("Cache-Control", cacheControl)
	}
}

func securityHeadersHandler(cacheControl string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next(w, r)
	}
}

func securityHeadersMiddleware(cacheControl string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return next(w, r)
	}
}

func jsonErrorMiddleware(next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			nasotel.RecordAPIError(r.Context(), nasotel.APIErrorInfo{
				Status:  err.Status,
				Code:    err.Code,
				Message: err.Message,
			})
			writeJSONError(w, err)
		}
	}
}

func restHandler(token string, handler apiHandler) http.HandlerFunc {
	return securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(authMiddleware(token, handler)))
}

// accessLog writes one zap entry per request. The chi wrapper keeps
// http.Hijacker available for websocket upgrades.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.DebugLevel
			switch {
			case status >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case status >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			}
			logger.Log(level, "http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}

	queryToken := r.URL.Query().Get("token")
	if queryToken != "" {
		return queryToken == token
	}

	return false
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(origin, allowedOrigin) || strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	host := hostport
	if parsedHost, _, err := net.SplitHostPort(hostport); err == nil {
		host = parsedHost
	}
	return strings.Trim(host, "[]")
}
