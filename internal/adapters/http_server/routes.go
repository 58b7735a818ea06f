package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is one entry of the fixed route table.
type Route struct {
	Method  string
	Pattern string
	Name    string
	Handler http.Handler
}

func routeTable(h *Handlers) []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/health_check", Name: "health_check", Handler: http.HandlerFunc(healthCheck)},
		{Method: http.MethodPost, Pattern: "/subscriptions", Name: "subscribe", Handler: RateLimit(h.SubscribeRPS, h.SubscribeBurst)(http.HandlerFunc(h.subscribe))},
	}
}

// mountRoutes registers routes on m and installs the fallbacks.
//
// Unknown path: 404. Known path with an unregistered method: 405 with an
// Allow header built from the table, so the policy does not depend on the
// router's defaults.
func mountRoutes(m chi.Router, routes []Route) error {
	seen := make(map[string]bool, len(routes))
	allow := make(map[string][]string)
	for _, rt := range routes {
		key := rt.Method + " " + rt.Pattern
		if seen[key] {
			return fmt.Errorf("duplicate route %s", key)
		}
		if rt.Handler == nil {
			return fmt.Errorf("route %s has no handler", key)
		}
		seen[key] = true
		allow[rt.Pattern] = append(allow[rt.Pattern], rt.Method)
		m.Method(rt.Method, rt.Pattern, rt.Handler)
	}

	m.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	m.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if methods, ok := allow[r.URL.Path]; ok {
			w.Header().Set("Allow", strings.Join(methods, ", "))
		}
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported on "+r.URL.Path)
	})
	return nil
}
