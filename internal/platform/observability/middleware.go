package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/platform/httpx"
	"github.com/saffron-market/api/internal/platform/requestctx"
)

// traceHeader is the load-balancer trace header in "TRACE_ID/SPAN_ID;o=OPTIONS" form.
const traceHeader = "X-Cloud-Trace-Context"

// InjectLoggerMiddleware makes the process logger available on every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = requestctx.NoopLogger()
	}
	return func(next http.Handler) http.Handler {
		next = nonNilHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// TraceMiddleware parses the trace header, when present, onto the request context.
func TraceMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		next = nonNilHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info, ok := parseTraceHeader(r.Header.Get(traceHeader)); ok {
				r = r.WithContext(requestctx.WithTrace(r.Context(), info))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLoggerMiddleware emits one structured completion line per request and
// converts panics into a 500 envelope instead of tearing down the connection.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		next = nonNilHandler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			logger := requestScopedLogger(r)
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			rec := &statusWriter{ResponseWriter: w}
			started := time.Now()

			defer func() {
				if p := recover(); p != nil {
					logger.Error("request panicked",
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()),
					)
					if !rec.headerSent {
						httpx.WriteError(ctx, rec, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
					}
				}
				logger.Info("request completed",
					zap.Int("status", rec.Status()),
					zap.Int64("bytes", rec.written),
					zap.Duration("latency", time.Since(started)),
				)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// requestScopedLogger decorates the context logger with the standard per-request fields.
func requestScopedLogger(r *http.Request) *zap.Logger {
	ctx := r.Context()
	logger := WithRequestFields(requestctx.Logger(ctx),
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", r.Method),
		zap.String("route", routeOf(r)),
	)
	if info, ok := requestctx.Trace(ctx); ok && info.TraceID != "" {
		logger = logger.With(zap.String("trace_id", info.TraceID))
	}
	if ip := peerIP(r); ip != "" {
		logger = logger.With(zap.String("remote_ip", ip))
	}
	return logger
}

func nonNilHandler(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return next
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil {
		return r.URL.Path
	}
	return ""
}

func peerIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func parseTraceHeader(value string) (requestctx.TraceInfo, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return requestctx.TraceInfo{}, false
	}

	traceID, rest, _ := strings.Cut(value, "/")
	traceID = strings.TrimSpace(traceID)
	if len(traceID) != 32 || !hexOnly(traceID) {
		return requestctx.TraceInfo{}, false
	}

	info := requestctx.TraceInfo{TraceID: traceID}
	if rest != "" {
		spanPart, opts, hasOpts := strings.Cut(rest, ";")
		if hasOpts {
			info.Sampled = strings.Contains(opts, "o=1")
		}
		if span, err := strconv.ParseUint(strings.TrimSpace(spanPart), 10, 64); err == nil && span > 0 {
			info.SpanID = fmt.Sprintf("%016x", span)
		}
	}
	return info, true
}

func hexOnly(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// statusWriter records the response status and byte count for the completion log.
type statusWriter struct {
	http.ResponseWriter
	status     int
	written    int64
	headerSent bool
}

func (sw *statusWriter) WriteHeader(status int) {
	if !sw.headerSent {
		sw.status = status
		sw.headerSent = true
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(data []byte) (int, error) {
	if !sw.headerSent {
		sw.WriteHeader(http.StatusOK)
	}
	n, err := sw.ResponseWriter.Write(data)
	sw.written += int64(n)
	return n, err
}

func (sw *statusWriter) Status() int {
	if !sw.headerSent {
		return http.StatusOK
	}
	return sw.status
}
