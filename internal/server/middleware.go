package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/zeusync/hubdash/internal/core/observability/log"
)

// requestLogger logs one line per request; server errors at error level.
func requestLogger(logger log.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []log.Field{
					log.String("method", r.Method),
					log.String("path", r.URL.Path),
					log.Int("status", ww.Status()),
					log.Int("bytes", ww.BytesWritten()),
					log.Duration("duration", time.Since(start)),
					log.String("remote_addr", r.RemoteAddr),
					log.String("request_id", middleware.GetReqID(r.Context())),
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Error("HTTP request", fields...)
					return
				}
				logger.Debug("HTTP request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
