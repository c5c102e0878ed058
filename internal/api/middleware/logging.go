package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/metrics"
)

func Logger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				route := RouteLabel(r.URL.Path)
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

				level := zerolog.InfoLevel
				if route == "/metrics" || route == "/health" {
					level = zerolog.DebugLevel
				}
				log.WithLevel(level).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", duration).
					Str("request_id", chimiddleware.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("request_id", chimiddleware.GetReqID(r.Context())).
						Msg("panic recovered")

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

var idCollections = map[string]bool{"webhooks": true, "requests": true, "mappings": true}

// RouteLabel collapses a request path into a low-cardinality metrics label.
func RouteLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/webhook/"):
		return "/webhook/*"
	case path == "/health", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/"):
		segments := strings.Split(strings.Trim(path, "/"), "/")
		if len(segments) >= 3 && idCollections[segments[1]] {
			segments[2] = ":id"
		}
		return "/" + strings.Join(segments, "/")
	default:
		return "static"
	}
}
