package entity

import "time"

// User is a company member as seen by the approval core
type User struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department,omitempty"`
	Active     bool      `json:"active"`
	RoleIDs    []int64   `json:"role_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasAnyRole reports whether the user holds at least one of roleIDs
func (u *User) HasAnyRole(roleIDs []int64) bool {
	for _, want := range roleIDs {
		for _, have := range u.RoleIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Role is a named company role used by approval level configurations
type Role struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
}
