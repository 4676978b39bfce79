package rest

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/driveline/auto-auction-backend/internal/infrastructure/cache"
	"github.com/driveline/auto-auction-backend/internal/metrics"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares outermost-first.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.InfoContext(r.Context(), "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
					Type:    "internal",
					Message: "an internal error occurred",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(reg *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			reg.RecordAPIRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

// rateLimitMiddleware enforces a per-caller request budget: the verified
// user ID when the auth middleware ran before it, the client IP on public
// routes. The shared Redis window is authoritative; when Redis is
// unreachable each process falls back to a local token bucket so the API
// degrades rather than opens up.
type rateLimitMiddleware struct {
	limiter cache.RateLimiter
	limit   int
	burst   int
	window  time.Duration

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func newRateLimitMiddleware(limiter cache.RateLimiter, perSecond, burst int) *rateLimitMiddleware {
	return &rateLimitMiddleware{
		limiter: limiter,
		limit:   perSecond,
		burst:   burst,
		window:  time.Second,
		local:   make(map[string]*rate.Limiter),
	}
}

func (m *rateLimitMiddleware) callerKey(r *http.Request) string {
	if id, ok := userIDFrom(r.Context()); ok {
		return id.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *rateLimitMiddleware) allowLocal(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.local[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.limit), m.burst)
		m.local[key] = l
	}
	return l.Allow()
}

func (m *rateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.callerKey(r)

		allowed, err := m.limiter.Allow(r.Context(), key, m.limit, m.window)
		if err != nil {
			allowed = m.allowLocal(key)
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(m.window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errorBody{
				Type:    "rate_limit",
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
