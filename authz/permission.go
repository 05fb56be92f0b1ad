package authz

import "leaveflow/models"

type Permission string

const (
	PermSubmit      Permission = "submit"
	PermApprove     Permission = "approve"
	PermReject      Permission = "reject"
	PermCancel      Permission = "cancel"
	PermOverride    Permission = "override"
	PermViewAll     Permission = "view_all"
	PermManageUsers Permission = "manage_users"
)

// Table maps non-admin roles to the permissions they hold.
type Table map[models.Role][]Permission

func DefaultTable() Table {
	return Table{
		models.RoleHR:         {PermSubmit, PermCancel, PermViewAll},
		models.RoleSupervisor: {PermSubmit, PermCancel, PermApprove, PermReject},
		models.RoleEmployee:   {PermSubmit, PermCancel},
	}
}

func (t Table) index() map[models.Role]map[Permission]bool {
	ret := make(map[models.Role]map[Permission]bool, len(t))
	for role, perms := range t {
		set := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		ret[role] = set
	}
	return ret
}
