package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"brokergate/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requireAPIKey guards every /api route with a constant-time key compare.
func requireAPIKey(key string, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				log.Debugf("rejected %s %s: bad api key", r.Method, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				body, _ := sonic.Marshal(errEnvelope{S: "error", ErrMsg: "missing or invalid API key"})
				w.Write(body) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// observe logs each request and feeds the prometheus collectors. The route
// template keeps label cardinality bounded regardless of path parameters.
func observe(m *metrics, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			elapsed := time.Since(start)
			m.observe(route, r.Method, sw.status, elapsed)
			log.Debugf("%s %s -> %d in %s", r.Method, r.URL.Path, sw.status, elapsed)
		})
	}
}

func recovery(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
