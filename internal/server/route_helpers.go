package server

import (
	"net/http"
	"strings"
)

// RouteHandler matches http.HandlerFunc; the alias keeps MethodRouter
// literals short.
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter dispatches one path by HTTP method.
type MethodRouter map[string]RouteHandler

// RouteByMethod runs the handler registered for the request method, or
// answers 405.
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// routePattern collapses resource ids out of request paths so the metric
// path label stays low-cardinality: /api/jobs/3e8b.../pause becomes
// /api/jobs/{id}/pause.
func routePattern(path string) string {
	for _, prefix := range []string{"/api/jobs/", "/api/commitments/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := path[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return prefix + "{id}/" + rest[idx+1:]
		}
		return prefix + "{id}"
	}
	return path
}
