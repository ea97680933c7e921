// Package auth issues and validates the bearer tokens used by the resident
// and concierge clients. The JWT subject is the department id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"visitor-parking-backend/internal/apperr"
	"visitor-parking-backend/internal/store"
)

// Service authenticates departments and manages JWT tokens.
type Service struct {
	store    store.Store
	secret   []byte
	tokenTTL time.Duration

	// Now is the token clock; tests override it.
	Now func() time.Time
}

// NewService creates an auth service.
func NewService(s store.Store, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		store:    s,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		Now:      time.Now,
	}
}

// LoginRequest carries the credentials posted to /auth/login. The
// identifier may be the department id or its registered email.
type LoginRequest struct {
	DepartmentOrID string `json:"department_or_id" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

// TokenResponse is the login response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Department  string `json:"department"`
}

// Login validates the credentials and returns a signed token. A missing
// department and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	dept, err := s.store.GetDepartmentByLogin(ctx, req.DepartmentOrID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up department: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(dept.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	now := s.Now()
	claims := jwt.MapClaims{
		"sub": dept.ID,
		"exp": now.Add(s.tokenTTL).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		Department:  dept.ID,
	}, nil
}

// ValidateToken parses and verifies a bearer token, returning the
// department id it was issued for.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.Now() }))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", apperr.ErrTokenInvalid
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", apperr.ErrTokenInvalid
	}
	return sub, nil
}

// HashPassword returns the bcrypt hash stored for a department.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
