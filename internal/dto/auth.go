package dto

import "github.com/golang-jwt/jwt/v5"

// LoginRequest user login request
type LoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password"`
}

// LoginResponse user login response
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// JWTClaims user JWT claims
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ProfileResponse authenticated caller identity and linked smart accounts
type ProfileResponse struct {
	Success   bool     `json:"success"`
	UserID    string   `json:"user_id"`
	Accounts  []string `json:"accounts"`
	LinkedAt  []int64  `json:"linked_at,omitempty"`
	IssuedAt  int64    `json:"issued_at,omitempty"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
}

// LinkAccountRequest smart account link request
type LinkAccountRequest struct {
	AAAddress string `json:"aa_address" binding:"required"`
}
