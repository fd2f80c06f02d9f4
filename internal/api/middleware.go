package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tfomics/tfomics/pkg/observability"
)

// requestLogger logs each request and reports it to the HTTP hooks.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path)

		// Report panics to the hooks, then let the recoverer above
		// turn them into a 500.
		defer func() {
			if rec := recover(); rec != nil {
				observability.HTTP().OnError(r.Context(), r.Method, r.URL.Path, fmt.Errorf("panic: %v", rec))
				panic(rec)
			}
		}()
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		observability.HTTP().OnResponse(r.Context(), r.Method, r.URL.Path, ww.Status(), elapsed)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
