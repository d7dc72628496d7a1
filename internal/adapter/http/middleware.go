package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
)

const (
	requestIDHeader        = "X-Request-ID"
	maxRequestIDLength     = 64
	rateLimiterVisitorTTL  = 5 * time.Minute
	minimumCleanupInterval = 30 * time.Second
)

type Middleware func(http.Handler) http.Handler

// ApplyMiddlewares wraps h so that the first middleware is the outermost
func ApplyMiddlewares(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0 && c.Burst > 0
}

// RequestIDMiddleware keeps a sane X-Request-ID from the caller or creates one
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return ""
		}
	}
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs every request, traces it in Sentry when a client is
// configured and turns panics into 500 responses
func LoggingMiddleware(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := logger.RequestID(ctx)

			hub := sentry.GetHubFromContext(ctx)
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
				ctx = sentry.SetHubOnContext(ctx, hub)
			}

			transaction := sentry.StartTransaction(
				ctx,
				fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				sentry.WithOpName("http.server"),
				sentry.ContinueFromRequest(r),
				sentry.WithTransactionSource(sentry.SourceURL),
			)
			defer transaction.Finish()
			r = r.WithContext(transaction.Context())
			hub.Scope().SetRequest(r)
			hub.Scope().SetTag("request_id", requestID)

			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			log.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			defer func() {
				if rec := recover(); rec != nil {
					transaction.Status = sentry.SpanStatusInternalError
					hub.RecoverWithContext(r.Context(), rec)
					log.Error("panic_recovered", "Panic recovered", requestID, map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
					}, fmt.Errorf("%v", rec))
					respondError(recorder, "Internal server error", http.StatusInternalServerError, nil)
				}
			}()

			next.ServeHTTP(recorder, r)

			transaction.Status = sentry.HTTPtoSpanStatus(recorder.status)
			details := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      recorder.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if recorder.status >= 500 {
				log.Error("http_response", "Request failed", requestID, details, fmt.Errorf("status %d", recorder.status))
				return
			}
			log.Debug("http_response", "Request completed", requestID, details)
		})
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware applies a token bucket per client address
func RateLimitMiddleware(cfg RateLimitConfig, log logger.Logger) Middleware {
	if !cfg.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}

	var (
		mu          sync.Mutex
		visitors    = make(map[string]*clientLimiter)
		lastCleanup time.Time
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			key := clientKey(r)

			mu.Lock()
			v, ok := visitors[key]
			if !ok {
				v = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
				visitors[key] = v
			}
			v.lastSeen = now

			if now.Sub(lastCleanup) > minimumCleanupInterval {
				for k, c := range visitors {
					if now.Sub(c.lastSeen) > rateLimiterVisitorTTL {
						delete(visitors, k)
					}
				}
				lastCleanup = now
			}
			mu.Unlock()

			if !v.limiter.AllowN(now, 1) {
				log.Debug("rate_limited", "Rate limit exceeded", logger.RequestID(r.Context()), map[string]interface{}{
					"client": key,
					"path":   r.URL.Path,
				})
				w.Header().Set("Retry-After", "1")
				respondError(w, "Too many requests", http.StatusTooManyRequests, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
