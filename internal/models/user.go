package models

// UserRole scopes rating aggregates. A single user may act in both roles.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTutor   UserRole = "TUTOR"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
