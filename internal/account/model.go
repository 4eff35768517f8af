// Package account mirrors identities issued by the external auth provider
// into a local users table, which carries the role used for admin access.
package account

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Account struct {
	ID        uuid.UUID
	Email     string
	Role      Role
	CreatedAt time.Time
}
