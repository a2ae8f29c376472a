// Package access resolves roles to permissions and data scopes. The role
// table is a closed enumeration built once at startup; anything outside it
// fails closed to no access.
package access

import "fmt"

// Role is one of the fixed caller roles.
type Role string

const (
	RoleGP      Role = "gp"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
)

// Permission names a single grantable capability.
type Permission string

const (
	PermQueryDocuments      Permission = "query_documents"
	PermViewAudit           Permission = "view_audit"
	PermManageCollections   Permission = "manage_collections"
	PermDeanonymizeResponse Permission = "deanonymize_response"
	PermCloudRouting        Permission = "cloud_routing"
)

// DataScope is the resource subset a role and request may touch. The zero
// value is the empty scope: access to nothing.
type DataScope struct {
	Collections []string `json:"collections"`
	OwnRecords  bool     `json:"own_records"` // restricted to the caller's own patient records
}

// Empty reports whether the scope grants access to nothing.
func (s DataScope) Empty() bool {
	return len(s.Collections) == 0 && !s.OwnRecords
}

// UnknownRoleError marks a role outside the closed enumeration. Callers log
// it as a security-relevant event; access is denied, never defaulted.
type UnknownRoleError struct {
	Role Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role: %q", e.Role)
}

// roleGrant holds a role's static permissions and collection reach.
type roleGrant struct {
	permissions map[Permission]bool
	collections []string
	ownRecords  bool
}

// Table is the static role-to-permission table, immutable after construction.
type Table struct {
	grants map[Role]roleGrant
}

// NewTable builds the default role table. Collections name the document
// collections each role may query; patients see only their own records.
func NewTable() *Table {
	return &Table{
		grants: map[Role]roleGrant{
			RoleGP: {
				permissions: map[Permission]bool{
					PermQueryDocuments:      true,
					PermDeanonymizeResponse: true,
					PermCloudRouting:        true,
				},
				collections: []string{"guidelines", "patient_records", "referrals"},
			},
			RolePatient: {
				permissions: map[Permission]bool{
					PermQueryDocuments:      true,
					PermDeanonymizeResponse: true,
				},
				collections: []string{"guidelines"},
				ownRecords:  true,
			},
			RoleAdmin: {
				permissions: map[Permission]bool{
					PermQueryDocuments:    true,
					PermManageCollections: true,
					PermCloudRouting:      true,
				},
				collections: []string{"guidelines", "referrals"},
			},
			RoleAuditor: {
				permissions: map[Permission]bool{
					PermViewAudit: true,
				},
			},
		},
	}
}

// CheckPermission reports whether the role holds the permission. Roles
// outside the table get false for every permission.
func (t *Table) CheckPermission(role Role, perm Permission) bool {
	grant, ok := t.grants[role]
	if !ok {
		return false
	}
	return grant.permissions[perm]
}

// ResolveScope intersects the role's static collection grant with the
// requested collections. An empty request resolves to the role's full grant.
// Unknown roles return the empty scope and an UnknownRoleError.
func (t *Table) ResolveScope(role Role, requested []string) (DataScope, error) {
	grant, ok := t.grants[role]
	if !ok {
		return DataScope{}, &UnknownRoleError{Role: role}
	}

	if len(requested) == 0 {
		return DataScope{
			Collections: append([]string(nil), grant.collections...),
			OwnRecords:  grant.ownRecords,
		}, nil
	}

	allowed := make(map[string]bool, len(grant.collections))
	for _, c := range grant.collections {
		allowed[c] = true
	}

	var granted []string
	for _, c := range requested {
		if allowed[c] {
			granted = append(granted, c)
		}
	}

	return DataScope{
		Collections: granted,
		OwnRecords:  grant.ownRecords,
	}, nil
}

// Roles returns the closed role enumeration.
func (t *Table) Roles() []Role {
	out := make([]Role, 0, len(t.grants))
	for r := range t.grants {
		out = append(out, r)
	}
	return out
}

// ParseRole validates a raw role string against the closed enumeration.
func (t *Table) ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if _, ok := t.grants[role]; !ok {
		return "", &UnknownRoleError{Role: role}
	}
	return role, nil
}
