// Package role defines the closed set of user roles and derives the role a
// user holds from their team relationships.
package role

import "fmt"

// Role is the denormalized role stored on every user.
type Role string

const (
	Admin         Role = "admin"
	ProjectAdmin  Role = "project_admin"
	ProjectMember Role = "project_member"
	Viewer        Role = "viewer"
)

// All lists every role, highest first.
var All = []Role{Admin, ProjectAdmin, ProjectMember, Viewer}

var labels = map[Role]string{
	Admin:         "Admin",
	ProjectAdmin:  "Project admin",
	ProjectMember: "Project member",
	Viewer:        "Viewer",
}

// Parse converts s into a Role.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := labels[r]
	return ok
}

// Label returns the human-readable name of r.
func (r Role) Label() string {
	if l, ok := labels[r]; ok {
		return l
	}
	return string(r)
}

func (r Role) String() string { return string(r) }

// Facts are the team relationships a derived role depends on.
type Facts struct {
	CreatedTeams int
	Memberships  int
}

// Derive maps facts to a role. Team creators outrank members, and members
// outrank everyone else. Admin is never derived.
func Derive(f Facts) Role {
	switch {
	case f.CreatedTeams > 0:
		return ProjectAdmin
	case f.Memberships > 0:
		return ProjectMember
	default:
		return Viewer
	}
}
