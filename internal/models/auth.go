package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the dashboard role carried in access tokens.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleOperator UserRole = "OPERATOR"
	RoleViewer   UserRole = "VIEWER"
)

// JWTClaims represents the JWT payload of access tokens minted by the dashboard.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// CanComment reports whether the role may write process comments.
func (c *JWTClaims) CanComment() bool {
	return c != nil && c.Role != RoleViewer
}
