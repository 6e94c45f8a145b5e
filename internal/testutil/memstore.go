// Package testutil has in-memory stand-ins for the Mongo store and the mail
// notifier, shared by package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/tazhibayda/authflow/internal/domain"
	"github.com/tazhibayda/authflow/internal/repo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore mirrors repo.Store semantics: unique email, unique pending
// verification code, strict expiry, single use token consumption,
// repo.ErrNotFound on misses.
type MemStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*domain.User
	// Err, when set, is returned by every call.
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{users: map[primitive.ObjectID]*domain.User{}}
}

func (m *MemStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MemStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// Get returns a copy of the stored record for assertions.
func (m *MemStore) Get(email string) (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return clone(u), true
		}
	}
	return domain.User{}, false
}

// Update edits a stored record in place, for arranging expiry scenarios.
func (m *MemStore) Update(email string, fn func(u *domain.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			fn(u)
		}
	}
}

func (m *MemStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repo.ErrEmailExists
		}
	}
	for _, existing := range m.users {
		if u.VerificationToken != "" && existing.VerificationToken == u.VerificationToken {
			return repo.ErrCodeTaken
		}
	}
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID()
	u.CreatedAt, u.UpdatedAt = now, now
	c := clone(u)
	m.users[u.ID] = &c
	return nil
}

func (m *MemStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m *MemStore) FindUserByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *MemStore) ConsumeVerificationToken(_ context.Context, code string, now time.Time) (*domain.User, error) {
	return m.update(func(u *domain.User) bool { return u.VerificationValid(code, now) }, func(u *domain.User) {
		u.IsVerified = true
		u.VerificationToken = ""
		u.VerificationTokenExpiresAt = nil
		u.UpdatedAt = now
	})
}

func (m *MemStore) SetResetToken(_ context.Context, id primitive.ObjectID, token string, expiresAt time.Time) error {
	_, err := m.update(func(u *domain.User) bool { return u.ID == id }, func(u *domain.User) {
		u.ResetPasswordToken = token
		u.ResetPasswordExpiresAt = &expiresAt
	})
	return err
}

func (m *MemStore) ConsumeResetToken(_ context.Context, token, passwordHash string, now time.Time) (*domain.User, error) {
	return m.update(func(u *domain.User) bool { return u.ResetValid(token, now) }, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.ResetPasswordToken = ""
		u.ResetPasswordExpiresAt = nil
		u.UpdatedAt = now
	})
}

func (m *MemStore) SetLastLogin(_ context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := m.update(func(u *domain.User) bool { return u.ID == id }, func(u *domain.User) {
		u.LastLogin = &at
	})
	return err
}

func (m *MemStore) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if match(u) {
			c := clone(u)
			return &c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *MemStore) update(match func(*domain.User) bool, apply func(*domain.User)) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if match(u) {
			apply(u)
			c := clone(u)
			return &c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func clone(u *domain.User) domain.User {
	c := *u
	c.VerificationTokenExpiresAt = copyTime(u.VerificationTokenExpiresAt)
	c.ResetPasswordExpiresAt = copyTime(u.ResetPasswordExpiresAt)
	c.LastLogin = copyTime(u.LastLogin)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
