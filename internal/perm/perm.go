// Package perm decides who may view or act on a Project. All predicates are
// pure; callers translate a false result into an authorization error.
package perm

const (
	// SuperAdminOrg is the organization that grants platform-wide privileges.
	SuperAdminOrg = "libretexts"

	RoleSuperAdmin  = "superadmin"
	RoleCampusAdmin = "campusadmin"
)

// Role is one org-scoped role held by a user.
type Role struct {
	Org  string
	Role string
}

// Caller is the identity evaluated by the predicates. An unauthenticated
// request has an empty UUID.
type Caller struct {
	UUID  string
	Roles []Role
}

// OwnerRef normalizes the two shapes a project owner arrives in: a raw UUID
// string from the stored row, or a profile object from a joined read
// projection. Shape is resolved here once; nothing downstream branches on it.
type OwnerRef struct {
	uuid string
}

func RawOwner(uuid string) OwnerRef {
	return OwnerRef{uuid: uuid}
}

// ResolvedOwner builds an OwnerRef from a looked-up profile's UUID.
func ResolvedOwner(uuid string) OwnerRef {
	return OwnerRef{uuid: uuid}
}

func (o OwnerRef) UUID() string {
	return o.uuid
}

// Snapshot is the denormalized slice of a Project the predicates need.
type Snapshot struct {
	Visibility    string
	Status        string
	Owner         OwnerRef
	Collaborators []string
}

// CanViewGeneral reports whether the caller may view the project: public
// visibility, available status, ownership, collaboration, or superadmin.
func CanViewGeneral(project Snapshot, caller Caller) bool {
	if project.Visibility == "public" || project.Status == "available" {
		return true
	}
	return CanActAsMember(project, caller)
}

// CanActAsMember reports whether the caller may perform member-only actions:
// ownership, collaboration, or superadmin. Strictly narrower than
// CanViewGeneral.
func CanActAsMember(project Snapshot, caller Caller) bool {
	if caller.UUID == "" {
		return IsSuperAdmin(caller)
	}
	if project.Owner.UUID() == caller.UUID {
		return true
	}
	for _, collaborator := range project.Collaborators {
		if collaborator == caller.UUID {
			return true
		}
	}
	return IsSuperAdmin(caller)
}

// IsSuperAdmin reports whether the caller holds the platform superadmin role.
func IsSuperAdmin(caller Caller) bool {
	for _, role := range caller.Roles {
		if role.Org == SuperAdminOrg && role.Role == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// IsCampusAdmin reports whether the caller administers the given org.
func IsCampusAdmin(caller Caller, orgID string) bool {
	for _, role := range caller.Roles {
		if role.Org == orgID && (role.Role == RoleCampusAdmin || role.Role == RoleSuperAdmin) {
			return true
		}
	}
	return false
}
