package model

import "github.com/golang-jwt/jwt/v5"

// AdminClaims are JWT claims for admin bearer tokens
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminLoginRequest is the request body for admin login
type AdminLoginRequest struct {
	Password string `json:"password"`
}

// AdminLoginResponse is returned after successful admin login
type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// SessionActionRequest names the session an admin action applies to.
type SessionActionRequest struct {
	SessionID string `json:"sessionId"`
}
