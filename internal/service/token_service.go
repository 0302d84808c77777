package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// TokenConfig configures access token issuance.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// TokenService issues and validates HS256 access tokens. Identity is owned by an
// upstream provider; this service only trusts the user id in the claims.
type TokenService struct {
	config TokenConfig
	runtimeDeps
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig, opts ...Option) *TokenService {
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &TokenService{config: cfg, runtimeDeps: newRuntimeDeps(opts)}
}

// Issue signs a token for userID.
func (s *TokenService) Issue(userID, email, fullName string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, appErrors.FieldError("user_id", "is required")
	}
	now := s.clock.Now()
	expires := now.Add(s.config.Expiration)
	claims := models.JWTClaims{
		UserID:   userID,
		Email:    email,
		FullName: fullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, appErrors.Internal(err, "failed to sign token")
	}
	return signed, expires, nil
}

// ValidateToken parses and validates a token string.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	parserOpts := []jwt.ParserOption{jwt.WithTimeFunc(s.clock.Now)}
	if s.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
