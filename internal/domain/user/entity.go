// internal/domain/user/entity.go
package user

import (
	"database/sql"
	"strings"
	"time"
)

// User is the slice of the identity record this service needs: webhook
// fallback matching by email and fee policy by tier. Account lifecycle
// lives in the identity service.
type User struct {
	ID          int64          `json:"id" db:"id"`
	Email       string         `json:"email" db:"email"`
	PhoneNumber sql.NullString `json:"phone_number,omitempty" db:"phone_number"`
	DisplayName sql.NullString `json:"display_name,omitempty" db:"display_name"`
	Tier        string         `json:"tier" db:"tier"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

func (u *User) IsPremium() bool {
	switch strings.ToLower(u.Tier) {
	case "premium", "admin":
		return true
	}
	return false
}
