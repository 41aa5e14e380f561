package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// accessInfo is filled in by inner middleware so the access log, which
// wraps them, can report who the request was for.
type accessInfo struct {
	tenantID int64
}

func noteTenant(ctx context.Context, tenantID int64) {
	if info, ok := ctx.Value(ctxKeyAccessInfo).(*accessInfo); ok {
		info.tenantID = tenantID
	}
}

// WithAccessLog writes one record per request. Probe endpoints log at debug;
// server errors log at warn.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &accessInfo{}
			sw := &statusCapturingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKeyAccessInfo, info)))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case r.URL.Path == "/healthz" || r.URL.Path == "/readyz":
				level = slog.LevelDebug
			}

			attrs := []any{
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if info.tenantID > 0 {
				attrs = append(attrs, "tenant_id", info.tenantID)
			}
			if facility := r.URL.Query().Get("facilityId"); facility != "" {
				attrs = append(attrs, "facility_id", facility)
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}
