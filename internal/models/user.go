package models

import "github.com/golang-jwt/jwt"

// User roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Claims are the JWT claims issued to dashboard users.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// Caller is the authenticated identity an operation runs on behalf of.
type Caller struct {
	ID   string
	Role string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// Owns reports whether the caller is the given user.
func (c Caller) Owns(userID string) bool { return c.ID != "" && c.ID == userID }

// DeviceToken is a push notification token registered by a user.
type DeviceToken struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}
