package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/logger"
	"github.com/thushan-yassen/egressgw/internal/util"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"
)

// responseWriter wraps http.ResponseWriter to capture response size and status.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += int64(size)
	return size, err
}

func (rw *responseWriter) WriteHeader(s int) {
	rw.status = s
	rw.ResponseWriter.WriteHeader(s)
}

// Flush lets streaming responses (provider SSE passthrough) reach the
// client as they arrive instead of waiting on a full buffer.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// EnhancedLoggingMiddleware assigns a request ID, threads a request-scoped
// logger through the context, and logs start/completion at INFO.
func EnhancedLoggingMiddleware(styledLogger logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(constants.HeaderXRequestID)
			if requestID == "" {
				requestID = util.GenerateRequestID()
			}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			baseLogger := slog.Default().With(constants.ContextRequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, baseLogger)

			w.Header().Set(constants.HeaderXRequestID, requestID)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			baseLogger.Info("Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_bytes", requestSize,
				"request_size_formatted", formatBytes(requestSize))

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			baseLogger.Info("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", duration.Milliseconds(),
				"duration_formatted", duration.String(),
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"size_flow", fmt.Sprintf("%s -> %s", formatBytes(requestSize), formatBytes(wrapped.size)))
		})
	}
}

// AccessLoggingMiddleware writes a detailed structured record intended for
// the rotating file sink rather than the console.
func AccessLoggingMiddleware(styledLogger logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := GetRequestID(r.Context())
			if requestID == "" {
				requestID = util.GenerateRequestID()
				r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))
			}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start)

			detailedCtx := context.WithValue(r.Context(), logger.DefaultDetailedCookie, true)
			slog.Default().InfoContext(detailedCtx, "Access log",
				"timestamp", start.Format(time.RFC3339),
				"request_id", requestID,
				"remote_addr", r.RemoteAddr,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", wrapped.status,
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"duration_ms", duration.Milliseconds(),
				"user_agent", r.UserAgent(),
				"referer", r.Referer(),
				"content_type", r.Header.Get(constants.HeaderContentType),
				"accept", r.Header.Get(constants.HeaderAccept))
		})
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	const suffixes = "KMGTPE"

	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
	}
	size := float64(bytes) / float64(div)
	return fmt.Sprintf("%.1f%cB", size, suffixes[exp])
}

func FormatBytes(bytes int64) string {
	return formatBytes(bytes)
}
