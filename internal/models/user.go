package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleClient  Role = "client"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// UserAccount represents an identity record in the user directory.
// Credential material is only touched by the login flow.
type UserAccount struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Email        string                 `bson:"email" json:"email"`
	PasswordHash string                 `bson:"password_hash" json:"-"`
	Role         Role                   `bson:"role" json:"role"`
	FullName     string                 `bson:"full_name" json:"full_name"`
	Banned       bool                   `bson:"banned" json:"banned"`
	BannedUntil  *time.Time             `bson:"banned_until,omitempty" json:"banned_until,omitempty"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	LastLogin    *time.Time             `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `bson:"updated_at" json:"updated_at"`
}

// IsBanned reports whether the account is currently banned.
func (u *UserAccount) IsBanned(now time.Time) bool {
	if !u.Banned {
		return false
	}
	return u.BannedUntil == nil || now.Before(*u.BannedUntil)
}

// Principal is the verified identity attached to a single request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsStaff reports whether the principal acts for the business.
func (p *Principal) IsStaff() bool {
	return p != nil && p.Role.IsStaff()
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token     string      `json:"token"`
	Principal Principal   `json:"principal"`
	User      UserAccount `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleClient, RoleAdmin, RoleManager:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw claim or request value into a Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidRole(role) {
		return "", false
	}
	return role, true
}

// NormalizeRole maps an absent or unrecognized role claim to RoleClient.
func NormalizeRole(raw string) Role {
	if role, ok := ParseRole(raw); ok {
		return role
	}
	return RoleClient
}

// IsStaff reports whether the role may administer fleet and consignments.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleManager:
		return true
	default:
		return false
	}
}
