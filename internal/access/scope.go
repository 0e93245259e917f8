// Package access implements API key verification and the authorization
// envelope ("scope") every dispatched command carries: either Admin
// (unrestricted) or Group(id) (restricted to that group's tenant
// membership). See spec.md §4.2.
package access

import "fmt"

// Kind is the variant tag for a Scope.
type Kind int

const (
	KindAdmin Kind = iota
	KindGroup
)

// Scope is either Admin or Group(id); the zero value is never valid on
// its own and callers should only ever hold a Scope produced by Verify.
type Scope struct {
	Kind    Kind
	GroupID string
}

// Admin constructs the unrestricted scope.
func Admin() Scope { return Scope{Kind: KindAdmin} }

// ForGroup constructs a scope restricted to groupID's membership.
func ForGroup(groupID string) Scope { return Scope{Kind: KindGroup, GroupID: groupID} }

// IsAdmin reports whether the scope is unrestricted.
func (s Scope) IsAdmin() bool { return s.Kind == KindAdmin }

// String renders a scope for logging ("admin" or "group:<id>"); never
// includes the key material that produced it.
func (s Scope) String() string {
	if s.IsAdmin() {
		return "admin"
	}
	return fmt.Sprintf("group:%s", s.GroupID)
}
