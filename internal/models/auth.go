package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. The subject is always a user id;
// the acting role is decided per operation by ownership, not by the token.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}
