// Package routing maps a normalized role to the landing destination of a realm.
package routing

import (
	"fmt"

	profiledomain "backoffice/portal/internal/profile/domain"
)

// Realm selects the role table and the persisted-state key names.
type Realm string

const (
	RealmGeneral Realm = "general"
	RealmAdmin   Realm = "admin"
)

// ParseRealm validates s as a realm name.
func ParseRealm(s string) (Realm, error) {
	switch Realm(s) {
	case RealmGeneral, RealmAdmin:
		return Realm(s), nil
	default:
		return "", fmt.Errorf("unknown realm %q (want general or admin)", s)
	}
}

// Destination is a landing path, e.g. "/admin".
type Destination string

// Table is a total role → destination mapping. The zero value routes everything to "/".
type Table struct {
	routes   map[string]Destination
	fallback Destination
}

// NewTable returns a table with the given routes; roles not listed go to fallback.
// Keys are normalized so callers may write them in any case.
func NewTable(routes map[string]Destination, fallback Destination) Table {
	m := make(map[string]Destination, len(routes))
	for role, dest := range routes {
		m[profiledomain.NormalizeRole(role)] = dest
	}
	return Table{routes: m, fallback: fallback}
}

// RouteFor returns the destination for role. It never fails: role is normalized first and
// anything unknown (including "none") takes the fallback.
func (t Table) RouteFor(role string) Destination {
	if d, ok := t.routes[profiledomain.NormalizeRole(role)]; ok {
		return d
	}
	if t.fallback == "" {
		return "/"
	}
	return t.fallback
}

var staffRoles = []string{"admin", "super_admin", "director", "manager"}

// GeneralTable is the main application's table.
func GeneralTable() Table {
	routes := map[string]Destination{
		"student":     "/student",
		"shareholder": "/shareholder",
		"applicant":   "/applicant",
	}
	for _, r := range staffRoles {
		routes[r] = "/admin"
	}
	return NewTable(routes, "/")
}

// AdminTable is the admin console's table: staff land on the dashboard, everyone else is turned away.
func AdminTable() Table {
	routes := make(map[string]Destination, len(staffRoles))
	for _, r := range staffRoles {
		routes[r] = "/admin/dashboard"
	}
	return NewTable(routes, "/admin/unauthorized")
}

// TableFor returns the table of realm. Unknown realms get the general table.
func TableFor(realm Realm) Table {
	if realm == RealmAdmin {
		return AdminTable()
	}
	return GeneralTable()
}
