// Package auth guards the simulation control API with a single operator
// credential and JWT bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service issues and validates operator tokens.
type Service struct {
	jwtSecret    []byte
	tokenExp     time.Duration
	passwordHash string
}

// NewService builds the service from the environment: JWT_SECRET,
// JWT_EXPIRY (Go duration, default 24h) and OPERATOR_PASSWORD (hashed at
// startup) or OPERATOR_PASSWORD_HASH (pre-hashed bcrypt).
func NewService() (*Service, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default-secret-key-change-in-production"
	}

	exp := 24 * time.Hour
	if expStr := os.Getenv("JWT_EXPIRY"); expStr != "" {
		if parsed, err := time.ParseDuration(expStr); err == nil {
			exp = parsed
		}
	}

	hash := os.Getenv("OPERATOR_PASSWORD_HASH")
	if hash == "" {
		password := os.Getenv("OPERATOR_PASSWORD")
		if password == "" {
			password = "raceline"
		}
		bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash operator password: %w", err)
		}
		hash = string(bytes)
	}

	return &Service{
		jwtSecret:    []byte(secret),
		tokenExp:     exp,
		passwordHash: hash,
	}, nil
}

// Login checks the operator password and returns a bearer token.
func (s *Service) Login(password string) (string, error) {
	if bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.generateToken()
}

func (s *Service) generateToken() (string, error) {
	claims := jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(s.tokenExp).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a bearer token, tolerating a "Bearer " prefix.
func (s *Service) ValidateToken(tokenString string) error {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid operator token.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		if err := s.ValidateToken(authHeader); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
