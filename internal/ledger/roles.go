package ledger

import "errors"

// Role names follow the on-chain deployment.
const (
	RoleDefaultAdmin = "DEFAULT_ADMIN_ROLE"
	RoleOptionIssuer = "OPTION_ISSUER_ROLE"
)

// ErrMissingRole is returned when the caller lacks the capability a
// privileged operation requires. Checked before any state mutation.
var ErrMissingRole = errors.New("ledger: account is missing role")

// RoleSet is the capability registry. DEFAULT_ADMIN_ROLE governs grants and
// revocations; OPTION_ISSUER_ROLE gates pool lock/unlock.
type RoleSet struct {
	grants map[string]map[string]bool
}

// NewRoleSet creates a registry with the admin holding DEFAULT_ADMIN_ROLE.
func NewRoleSet(admin string) *RoleSet {
	rs := &RoleSet{grants: map[string]map[string]bool{
		RoleDefaultAdmin: {admin: true},
	}}
	return rs
}

// Has reports whether the account holds the role.
func (r *RoleSet) Has(role, acct string) bool {
	return r.grants[role][acct]
}

// Grant gives the account a role. Only DEFAULT_ADMIN_ROLE holders may grant.
func (r *RoleSet) Grant(caller, role, acct string) error {
	if !r.Has(RoleDefaultAdmin, caller) {
		return ErrMissingRole
	}
	m, ok := r.grants[role]
	if !ok {
		m = make(map[string]bool)
		r.grants[role] = m
	}
	m[acct] = true
	return nil
}

// Revoke removes a role from the account. Only DEFAULT_ADMIN_ROLE holders
// may revoke; an admin may revoke its own admin role.
func (r *RoleSet) Revoke(caller, role, acct string) error {
	if !r.Has(RoleDefaultAdmin, caller) {
		return ErrMissingRole
	}
	if m, ok := r.grants[role]; ok {
		delete(m, acct)
	}
	return nil
}
