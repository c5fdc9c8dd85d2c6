package store

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultAvatar   = "https://placehold.co/40x40.png"
	DefaultPassword = "password123"
)

// PasswordHasher turns a plaintext password into its stored form.
type PasswordHasher func(plain string) (string, error)

// UserRegistry is the flat list of users. Users are never deleted.
type UserRegistry struct {
	mu    sync.RWMutex
	users []User
	hash  PasswordHasher
	now   func() time.Time
}

func NewUserRegistry(users []User, hash PasswordHasher) *UserRegistry {
	copied := make([]User, len(users))
	copy(copied, users)
	return &UserRegistry{users: copied, hash: hash, now: time.Now}
}

func (r *UserRegistry) List() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, len(r.users))
	copy(out, r.users)
	return out
}

func (r *UserRegistry) Get(id string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// FindByLogin matches login against email or name, ignoring case.
func (r *UserRegistry) FindByLogin(login string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, login) || strings.EqualFold(u.Name, login) {
			return u, true
		}
	}
	return User{}, false
}

// Add appends a user with a generated id, the placeholder avatar and the
// default password.
func (r *UserRegistry) Add(fields NewUser) (User, error) {
	hashed := DefaultPassword
	if r.hash != nil {
		h, err := r.hash(DefaultPassword)
		if err != nil {
			return User{}, fmt.Errorf("hash default password: %w", err)
		}
		hashed = h
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := User{
		ID:           r.nextIDLocked(),
		Name:         fields.Name,
		Email:        fields.Email,
		Avatar:       DefaultAvatar,
		Role:         fields.Role,
		Department:   fields.Department,
		PasswordHash: hashed,
	}
	r.users = append(r.users, user)
	return user, nil
}

// Update merges patch into the user with the given id and returns the
// merged user.
func (r *UserRegistry) Update(id string, patch UserPatch) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == id {
			patch.apply(&r.users[i])
			return r.users[i], nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *UserRegistry) nextIDLocked() string {
	ms := r.now().UnixMilli()
	for {
		id := fmt.Sprintf("user-%d", ms)
		if !r.hasIDLocked(id) {
			return id
		}
		ms++
	}
}

func (r *UserRegistry) hasIDLocked(id string) bool {
	for _, u := range r.users {
		if u.ID == id {
			return true
		}
	}
	return false
}
