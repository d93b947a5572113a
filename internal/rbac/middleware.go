// Package rbac gates HTTP routes on the permissions granted to the actor's
// role. Authentication and role assignment happen at the gateway; this layer
// only enforces the grant table.
package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Grants map[string][]string
	Logger *slog.Logger
}

// New builds a Middleware over the standard role grants.
func New(logger *slog.Logger) Middleware {
	return Middleware{Grants: shared.RoleGrants(), Logger: logger}
}

// RequireAny ensures the actor holds at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.actorGrants(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if hasAnyPermission(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the actor holds all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.actorGrants(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if hasAllPermissions(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) actorGrants(r *http.Request) ([]string, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.EmployeeID == 0 {
		return nil, false
	}
	granted, ok := m.Grants[strings.ToLower(actor.Role)]
	if !ok {
		if m.Logger != nil {
			m.Logger.Warn("unknown role", slog.String("role", actor.Role))
		}
		return nil, true
	}
	return granted, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
