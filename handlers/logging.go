package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs one line per request through the injected slog logger,
// so HTTP access logs land in the same structured stream (and format) as
// everything else instead of chi's plain-text logger.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			startedAt := time.Now()

			// the wrapper captures the status code and bytes written, which
			// http.ResponseWriter alone does not expose.
			wrappedWriter := middleware.NewWrapResponseWriter(responseWriter, request.ProtoMajor)

			next.ServeHTTP(wrappedWriter, request)

			logger.Info("http request",
				"method", request.Method,
				"path", request.URL.Path,
				"status", wrappedWriter.Status(),
				"bytes", wrappedWriter.BytesWritten(),
				"duration", time.Since(startedAt).Round(time.Millisecond),
			)
		})
	}
}
