// Package authpw provides password sign-in and password changes.
package authpw

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"docuflex/internal/metrics"
	"docuflex/internal/store"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrWrongPassword      = errors.New("current password is not correct")
	ErrPasswordTooShort   = fmt.Errorf("new password must be at least %d characters long", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("new passwords do not match")
)

// Service provides password authentication against the user registry.
type Service struct {
	store UserStore
	cost  int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	FindByLogin(login string) (store.User, bool)
	Get(id string) (store.User, bool)
	Update(id string, patch store.UserPatch) (store.User, error)
}

func NewService(users UserStore) *Service {
	return &Service{store: users, cost: bcrypt.DefaultCost}
}

// NewServiceWithCost is NewService with an explicit bcrypt cost.
func NewServiceWithCost(users UserStore, cost int) *Service {
	return &Service{store: users, cost: cost}
}

// Hash hashes a password with the default bcrypt cost.
func Hash(plain string) (string, error) {
	return HashWithCost(plain, bcrypt.DefaultCost)
}

func HashWithCost(plain string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) Hasher() store.PasswordHasher {
	return func(plain string) (string, error) { return HashWithCost(plain, s.cost) }
}

// SignInRequest contains sign-in parameters. Login is an email or a name.
type SignInRequest struct {
	Login    string
	Password string
}

// SignIn authenticates a user. Unknown users and wrong passwords produce
// the same error.
func (s *Service) SignIn(req SignInRequest) (store.User, error) {
	if req.Login == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}

	user, ok := s.store.FindByLogin(req.Login)
	if !ok {
		metrics.RecordPermissionCheck("sign_in", false)
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.RecordPermissionCheck("sign_in", false)
		return store.User{}, ErrInvalidCredentials
	}
	metrics.RecordPermissionCheck("sign_in", true)
	return user, nil
}

// ChangePasswordRequest contains password change parameters
type ChangePasswordRequest struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword verifies the current password and stores the new one.
func (s *Service) ChangePassword(req ChangePasswordRequest) (store.User, error) {
	user, ok := s.store.Get(req.UserID)
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return store.User{}, ErrWrongPassword
	}
	if len(req.NewPassword) < MinPasswordLength {
		return store.User{}, ErrPasswordTooShort
	}
	if req.NewPassword != req.ConfirmPassword {
		return store.User{}, ErrPasswordMismatch
	}

	hash, err := HashWithCost(req.NewPassword, s.cost)
	if err != nil {
		return store.User{}, err
	}
	return s.store.Update(user.ID, store.UserPatch{PasswordHash: &hash})
}
