package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// Common auth errors.
var (
	ErrTokenNotExaminee = errors.New("token is not an examinee token")
)

// TokenType distinguishes examinee tokens from staff tokens issued by the
// same identity provider.
type TokenType string

const (
	TokenTypeExaminee TokenType = "examinee"
	TokenTypeAdmin    TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	Username  string    `json:"username"`
	RollNo    string    `json:"rollno,omitempty"`
	// Permissions is only set on admin tokens.
	Permissions []string `json:"permissions,omitempty"`
}

// AuthService validates tokens issued by the identity provider. Issuing
// tokens is not this service's job.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Username == "" {
		return nil, errors.New("token has no username")
	}

	return claims, nil
}

// ValidateExamineeToken validates a token and requires it to belong to an
// examinee.
func (s *AuthService) ValidateExamineeToken(tokenStr string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeExaminee {
		return nil, ErrTokenNotExaminee
	}
	return claims, nil
}
