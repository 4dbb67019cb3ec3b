package model

import "time"

// Roles carried in the access token's role claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
	RoleAdmin    = "ADMIN"
)

// Actor is the authenticated caller of an operation.  The core only needs
// an opaque user id; authentication itself happens before a request
// reaches the services.  A zero Actor is a guest.
type Actor struct {
	UserID string
	Role   string
	Name   string
	Email  string
}

// IsGuest reports whether the caller is unauthenticated.
func (a Actor) IsGuest() bool { return a.UserID == "" }

// IsStaff reports whether the caller may sell at the counter.
func (a Actor) IsStaff() bool { return a.Role == RoleStaff || a.Role == RoleAdmin }

// IsAdmin reports whether the caller is an administrator.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Participant is one viewer currently joined to a showtime room.
type Participant struct {
	UserID   string
	Name     string
	IsGuest  bool
	JoinedAt time.Time
}
