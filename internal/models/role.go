package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ParseRole converts raw input into a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CanEditPlans reports whether the role may author appointments and their reminder plans
func (r Role) CanEditPlans() bool {
	switch r {
	case RoleAdmin, RoleDoctor:
		return true
	case RolePatient:
		return false
	}
	panic(fmt.Sprintf("models: unhandled role %q", string(r)))
}

// Scan implements the sql.Scanner interface for Role
func (r *Role) Scan(value interface{}) error {
	if value == nil {
		*r = ""
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", value)
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements the driver.Valuer interface for Role
func (r Role) Value() (driver.Value, error) {
	return string(r), nil
}

// User is an account in the reminder dashboard
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
