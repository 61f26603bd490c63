// Package authz evaluates permission predicates against the authenticated
// principal and enforces team-scoped access.
package authz

import (
	"strings"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/role"
)

// Predicate is a closed set of permission rules: SingleRole, AnyOf or
// ObjectOwner. It is interpreted by Evaluate.
type Predicate interface {
	predicate()
}

// SingleRole grants access to principals holding exactly Role.
type SingleRole struct {
	Name string
	Role role.Role
}

// AnyOf grants access when any member grants access.
type AnyOf struct {
	Name    string
	Members []SingleRole
}

// ObjectOwner grants access when Base grants access or the principal owns
// the target object.
type ObjectOwner struct {
	Name string
	Base AnyOf
}

func (SingleRole) predicate()  {}
func (AnyOf) predicate()       {}
func (ObjectOwner) predicate() {}

// Owned is implemented by objects that carry an owning user.
type Owned interface {
	OwnerID() string
}

var (
	IsAdmin         = SingleRole{Name: "IsAdmin", Role: role.Admin}
	IsProjectAdmin  = SingleRole{Name: "IsProjectAdmin", Role: role.ProjectAdmin}
	IsProjectMember = SingleRole{Name: "IsProjectMember", Role: role.ProjectMember}
	IsViewer        = SingleRole{Name: "IsViewer", Role: role.Viewer}

	IsAdminOrProjectAdmin = AnyOf{
		Name:    "IsAdminOrProjectAdmin",
		Members: []SingleRole{IsAdmin, IsProjectAdmin},
	}
	IsTeamUser = AnyOf{
		Name:    "IsTeamUser",
		Members: []SingleRole{IsAdmin, IsProjectAdmin, IsProjectMember},
	}
	IsAnyUser = AnyOf{
		Name:    "IsAnyUser",
		Members: []SingleRole{IsAdmin, IsProjectAdmin, IsProjectMember, IsViewer},
	}

	IsOwnerOrAdmin = ObjectOwner{
		Name: "IsOwnerOrAdmin",
		Base: AnyOf{Name: "IsAdmin", Members: []SingleRole{IsAdmin}},
	}
	IsAssigneeOrManager = ObjectOwner{
		Name: "IsAssigneeOrManager",
		Base: IsAdminOrProjectAdmin,
	}
)

// Evaluate reports whether principal satisfies p. A nil, inactive or
// blocked principal never does, whatever p says. target may be nil for
// predicates that do not inspect an object.
func Evaluate(p Predicate, principal *auth.User, target Owned) bool {
	if !principal.CanAct() {
		return false
	}
	switch p := p.(type) {
	case SingleRole:
		return principal.Role == p.Role
	case AnyOf:
		for _, m := range p.Members {
			if principal.Role == m.Role {
				return true
			}
		}
		return false
	case ObjectOwner:
		if Evaluate(p.Base, principal, target) {
			return true
		}
		if target == nil {
			return false
		}
		owner := target.OwnerID()
		return owner != "" && owner == principal.ID
	default:
		return false
	}
}

// Label returns a stable, human-readable name for p.
func Label(p Predicate) string {
	switch p := p.(type) {
	case SingleRole:
		if p.Name != "" {
			return p.Name
		}
		return "Is" + camel(p.Role.Label())
	case AnyOf:
		if p.Name != "" {
			return p.Name
		}
		names := make([]string, len(p.Members))
		for i, m := range p.Members {
			names[i] = Label(m)
		}
		return "AnyOf(" + strings.Join(names, ", ") + ")"
	case ObjectOwner:
		if p.Name != "" {
			return p.Name
		}
		return "OwnerOr(" + Label(p.Base) + ")"
	default:
		return "Unknown"
	}
}

// Roles returns the roles p grants by role alone, without duplicates.
// Ownership grants are not roles and are not listed.
func Roles(p Predicate) []role.Role {
	switch p := p.(type) {
	case SingleRole:
		return []role.Role{p.Role}
	case AnyOf:
		seen := make(map[role.Role]bool, len(p.Members))
		var out []role.Role
		for _, m := range p.Members {
			if !seen[m.Role] {
				seen[m.Role] = true
				out = append(out, m.Role)
			}
		}
		return out
	case ObjectOwner:
		return Roles(p.Base)
	default:
		return nil
	}
}

// camel joins the words of s, capitalizing each one.
func camel(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "")
}
