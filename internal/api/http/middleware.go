package apihttp

import (
	"bufio"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"metasearch/searchservice/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Flush() {
	flusher, ok := rw.ResponseWriter.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			level := pickRequestLogLevel(r.URL.Path, rw.status)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int("bytes", rw.size),
				slog.Int64("durationMs", time.Since(start).Milliseconds()),
				slog.String("clientIP", clientIP(r)),
			}
			if requestID := chiMiddleware.GetReqID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("requestId", requestID))
			}
			if rawQuery := strings.TrimSpace(r.URL.RawQuery); rawQuery != "" {
				attrs = append(attrs, slog.String("query", truncate(rawQuery, 180)))
			}
			if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
				attrs = append(attrs, slog.String("userAgent", truncate(userAgent, 120)))
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					if recovered == http.ErrAbortHandler {
						panic(recovered)
					}
					logger.Error("panic recovered",
						slog.Any("error", recovered),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("clientIP", clientIP(r)),
						slog.String("stack", string(debug.Stack())),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware labels requests with the matched chi route pattern so
// path parameters do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type requestTracker interface {
	TrackRequest()
}

func countRequests(tracker requestTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tracker != nil {
				tracker.TrackRequest()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func pickRequestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == "/health" || path == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// clientIP is the caller as reported by forwarding headers. It is only fit
// for logs; rate limiting uses clientRateLimiter.clientKey.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	if xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); xRealIP != "" {
		return xRealIP
	}
	return peerHost(r)
}

func peerHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// truncate cuts value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	suffix := "..."
	if limit <= len(suffix) {
		suffix = ""
	}
	cut := limit - len(suffix)
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + suffix
}

// clientRateLimiter keeps one token bucket per client IP. A bucket holds the
// whole window's budget and refills evenly across the window. Forwarding
// headers are honoured only when the direct peer is a trusted proxy.
type clientRateLimiter struct {
	every   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time
	trusted []netip.Prefix

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastPrune time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientRateLimiter(requests int, window time.Duration, trusted []netip.Prefix) *clientRateLimiter {
	return &clientRateLimiter{
		every:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		window:  window,
		now:     time.Now,
		trusted: trusted,
		clients: make(map[string]*clientBucket),
	}
}

func (l *clientRateLimiter) clientKey(r *http.Request) string {
	peer := peerHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return peer
	}
	addr = addr.Unmap()
	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return clientIP(r)
		}
	}
	return addr.String()
}

func (l *clientRateLimiter) allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.window {
		for key, bucket := range l.clients {
			// Idle for a full window means the bucket is full again.
			if now.Sub(bucket.lastSeen) >= l.window {
				delete(l.clients, key)
			}
		}
		l.lastPrune = now
	}

	bucket, ok := l.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *clientRateLimiter) retryAfterSeconds() int {
	perToken := l.window / time.Duration(l.burst)
	return int(math.Max(1, math.Ceil(perToken.Seconds())))
}

func (l *clientRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests from this client, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
