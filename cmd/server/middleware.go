package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/prcycle/internal/logger"
)

const slowRequestThreshold = time.Second

// requestLogger injects a request-scoped logger and logs each completed request.
// 4xx/5xx responses and slow requests feed the logger counters.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := base.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLog)))

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
				logger.ErrorHttp5xx()
			case status >= 400:
				level = slog.LevelWarn
				logger.WarnHttp4xx(status)
			}
			if duration > slowRequestThreshold {
				logger.WarnSlowRequest()
			}

			reqLog.Log(r.Context(), level, "HTTP request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", duration.String(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
