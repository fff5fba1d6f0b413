package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Roles accepted by the guard API
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// TokenClaims are the claims carried by bearer tokens for the admin and service API.
// The operator or service name travels in the registered "sub" claim.
type TokenClaims struct {
	Type string `json:"type"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}
