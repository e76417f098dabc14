package models

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Account is the caller resolved from the bearer token (Supabase auth claims).
type Account struct {
	ID    string   `json:"id"` // uuid, token "sub"
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

func (a *Account) Authenticated() bool { return a != nil && a.ID != "" }
