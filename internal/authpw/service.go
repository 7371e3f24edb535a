// Package authpw provides email/password credential handling.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"cabinet/api/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// dummyHash is compared against when the email is unknown so both paths cost
// one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cabinet-dummy-password"), bcrypt.DefaultCost)

// Service checks email/password credentials
type Service struct {
	store UserStore
	cost  int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// HashPassword hashes a password with the service's bcrypt cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SignIn authenticates a user
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
