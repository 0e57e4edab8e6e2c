package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"
)

// wrapRoutes layers panic recovery, CORS, and request instrumentation
// around the mux. The WebSocket upgrade path bypasses instrumentation:
// logging a long-lived connection as one request is useless, and the
// status-recording writer must not sit between gorilla and the socket.
func (s *Server) wrapRoutes(mux http.Handler) http.Handler {
	instrumented := s.instrument(allowCORS(s.recoverPanics(mux)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			setCORSHeaders(w)
			mux.ServeHTTP(w, r)
			return
		}
		instrumented.ServeHTTP(w, r)
	})
}

// instrument times each request, logs it, and feeds the duration histogram.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		entry := s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed)
		if r.URL.RawQuery != "" {
			entry.Str("query", r.URL.RawQuery)
		}
		entry.Msg("Request served")

		if s.app.Metrics != nil {
			s.app.Metrics.ObserveRequest(r.Method, routePattern(r.URL.Path), rec.status, elapsed)
		}
	})
}

// allowCORS admits browser dashboards from any origin and answers
// preflights. Lock the origin down at the deployment proxy for anything
// public.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// recoverPanics turns a handler panic into a 500 so one bad request cannot
// take the process down.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.app.Logger.Error().
					Str("panic", fmt.Sprintf("%v", v)).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the response code for the log line and metric.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Hijack keeps connection upgrades working through the wrapper.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("statusRecorder: underlying writer cannot hijack")
}
