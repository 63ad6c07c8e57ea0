// Package rbac maps roles to permissions and guards routes with them.
//
// A grant is a permission name ("exam:view"), a prefix pattern ("session:*")
// or "*". A grant ending in ":own" only applies to resources the caller owns:
// "exam:delete:own" lets a teacher delete the exams they wrote.
package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const ownSuffix = ":own"

// Policy resolves permissions for a role.
type Policy struct {
	grants map[string][]string
}

// NewPolicy builds a policy from role grants; nil means the default rules.
func NewPolicy(grants map[string][]string) *Policy {
	if grants == nil {
		grants = RolePermissions
	}
	return &Policy{grants: grants}
}

// Default is the policy used by handlers that do not carry their own.
var Default = NewPolicy(nil)

// Known reports whether role has an entry in the grant table.
func (p *Policy) Known(role string) bool {
	_, ok := p.grants[role]
	return ok
}

// Allows reports whether role holds perm outright.
func (p *Policy) Allows(role, perm string) bool {
	for _, g := range p.grants[role] {
		if strings.HasSuffix(g, ownSuffix) && g != perm {
			continue
		}
		if matchGrant(g, perm) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether role holds at least one of perms outright.
func (p *Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

// Decide resolves perm for a caller that does or does not own the resource.
// Owners also pass with the perm+":own" grant.
func (p *Policy) Decide(role, perm string, owner bool) bool {
	if p.Allows(role, perm) {
		return true
	}
	return owner && p.Allows(role, perm+ownSuffix)
}

func matchGrant(grant, perm string) bool {
	if grant == "*" || grant == perm {
		return true
	}
	if strings.HasSuffix(grant, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(grant, "*"))
	}
	return false
}

// Guard turns a policy into route middleware. roleOf reads the caller's role
// from the request context.
type Guard struct {
	policy *Policy
	roleOf func(context.Context) string
}

func NewGuard(p *Policy, roleOf func(context.Context) string) *Guard {
	if p == nil {
		p = Default
	}
	return &Guard{policy: p, roleOf: roleOf}
}

// Require enforces a single permission.
func (g *Guard) Require(perm string) func(http.Handler) http.Handler {
	return g.when(func(r *http.Request, role string) bool { return g.policy.Allows(role, perm) })
}

// RequireAny enforces that the role has at least one of the permissions.
func (g *Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return g.when(func(r *http.Request, role string) bool { return g.policy.AllowsAny(role, perms...) })
}

// RequireOwned enforces perm, accepting the ":own" grant when isOwner says the
// caller owns the addressed resource. isOwner is only consulted when needed.
func (g *Guard) RequireOwned(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return g.when(func(r *http.Request, role string) bool {
		if g.policy.Allows(role, perm) {
			return true
		}
		return g.policy.Allows(role, perm+ownSuffix) && isOwner(r)
	})
}

func (g *Guard) when(ok func(r *http.Request, role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := g.roleOf(r.Context())
			if role == "" || !ok(r, role) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": "FORBIDDEN", "message": "forbidden"})
}
