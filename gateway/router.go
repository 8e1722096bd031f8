package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	trustcore "github.com/RedBox-TN/Backend-sub000"
)

// ErrDuplicateRoute is returned when a pattern is registered twice.
var ErrDuplicateRoute = errors.New("route already registered")

// Router is an http.ServeMux where every route carries its access
// requirement.
type Router struct {
	authz Authorizer
	mux   *http.ServeMux

	mu     sync.RWMutex
	routes map[string]trustcore.Access
}

func NewRouter(authz Authorizer) *Router {
	return &Router{
		authz:  authz,
		mux:    http.NewServeMux(),
		routes: map[string]trustcore.Access{},
	}
}

// Handle registers h under pattern (ServeMux syntax, e.g. "GET /groups/{id}").
// The access value is checked here, once; an undeclared or invalid one is
// rejected and nothing is registered.
func (rt *Router) Handle(pattern string, access trustcore.Access, h http.Handler) error {
	if h == nil {
		return fmt.Errorf("gateway: nil handler for %q", pattern)
	}
	if err := access.Validate(); err != nil {
		return fmt.Errorf("gateway: route %q: %w", pattern, err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.routes[pattern]; ok {
		return fmt.Errorf("gateway: %q: %w", pattern, ErrDuplicateRoute)
	}

	rt.mux.Handle(pattern, Protect(rt.authz, access)(h))
	rt.routes[pattern] = access
	return nil
}

func (rt *Router) HandleFunc(pattern string, access trustcore.Access, fn http.HandlerFunc) error {
	return rt.Handle(pattern, access, fn)
}

// Access returns the requirement declared for pattern.
func (rt *Router) Access(pattern string) (trustcore.Access, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	a, ok := rt.routes[pattern]
	return a, ok
}

// Patterns lists registered patterns in sorted order.
func (rt *Router) Patterns() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.routes))
	for p := range rt.routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}
