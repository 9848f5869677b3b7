package service

import (
	"crypto/subtle"
	"fmt"
	"time"

	"roomchat/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const (
	adminRole     = "admin"
	adminTokenTTL = time.Hour
)

var ErrInvalidCredentials = fmt.Errorf("%w: invalid password", ErrForbidden)

// AdminService guards maintenance operations
type AdminService struct {
	password  []byte
	jwtSecret []byte
	now       func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(password, jwtSecret string) *AdminService {
	return &AdminService{
		password:  []byte(password),
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// CheckPassword compares the admin password in constant time.
func (s *AdminService) CheckPassword(password string) bool {
	if len(s.password) == 0 || password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), s.password) == 1
}

// Login validates the admin password and returns a short-lived token
func (s *AdminService) Login(password string) (*model.AdminLoginResponse, error) {
	if !s.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := &model.AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.AdminLoginResponse{
		Token:     tokenString,
		ExpiresIn: int64(adminTokenTTL / time.Second),
	}, nil
}

// ValidateToken validates an admin JWT and returns claims
func (s *AdminService) ValidateToken(tokenString string) (*model.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrForbidden
	}

	claims, ok := token.Claims.(*model.AdminClaims)
	if !ok || !token.Valid || claims.Role != adminRole {
		return nil, ErrForbidden
	}

	return claims, nil
}

// Authorize accepts either the admin password or an admin bearer token.
func (s *AdminService) Authorize(password, bearer string) error {
	if s.CheckPassword(password) {
		return nil
	}
	if bearer != "" {
		if _, err := s.ValidateToken(bearer); err == nil {
			return nil
		}
	}
	return ErrForbidden
}
