package memory

import (
	"context"
	"sync"

	"ironflex/backend/internal/models"
	"ironflex/backend/internal/repository"

	"github.com/google/uuid"
)

// UserStore keeps accounts in memory
type UserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

// NewUserStore returns an empty store
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

// Create hashes the password and stores u, like the gorm hook does
func (s *UserStore) Create(_ context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	hash, err := models.HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hash
	if u.Role == "" {
		u.Role = "user"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

// ByEmail looks a user up by email
func (s *UserStore) ByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// ByID looks a user up by id
func (s *UserStore) ByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// TouchLogin records a successful login
func (s *UserStore) TouchLogin(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[u.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.LastLogin = u.LastLogin
	s.users[u.ID] = stored
	return nil
}
