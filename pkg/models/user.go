package models

// Role classifies what a user may do outside of the assignments
// they personally hold.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// User is the minimal master-data surface the engine needs: reference
// validation and role checks. Employee records themselves are managed
// by an external collaborator.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required"`
	Role Role   `json:"role" validate:"required,oneof=employee manager admin"`
}

// IsPrivileged reports whether the user holds the override role that may
// manage audit sessions and act on behalf of task assignees.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin
}
