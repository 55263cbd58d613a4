package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/models"
	"ironflex/backend/internal/repository"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/jwt"
)

// Account errors
var (
	ErrUserAlreadyExists  = apperrors.NewConflictError("USER_EXISTS", "A user with this email already exists")
	ErrInvalidCredentials = apperrors.NewUnauthorizedError("INVALID_CREDENTIALS", "Invalid email or password")
	ErrUserNotFound       = apperrors.NewNotFoundError("NOT_FOUND", "User not found")
)

// UserStore persists accounts
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByID(ctx context.Context, id string) (*models.User, error)
	TouchLogin(ctx context.Context, u *models.User) error
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	GenerateToken(sub jwt.Subject) (string, error)
}

// UserService handles user-related operations
type UserService struct {
	users  UserStore
	tokens TokenIssuer
	now    func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore, tokens TokenIssuer) *UserService {
	return &UserService{users: users, tokens: tokens, now: time.Now}
}

// CreateUser registers an account and returns it with a session token
func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	_, err := s.users.ByEmail(ctx, email)
	if err == nil {
		return nil, "", ErrUserAlreadyExists
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}

	user := models.User{
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       email,
		Password:    req.Password,
		AvatarURL:   req.AvatarURL,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateToken(subjectOf(&user))
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

func subjectOf(u *models.User) jwt.Subject {
	return jwt.Subject{
		UserID: u.ID,
		Name:   u.DisplayName,
		Avatar: u.AvatarURL,
		Role:   jwt.Role(u.Role),
	}
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, string, error) {
	user, err := s.users.ByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	user.LastLogin = s.now()
	if err := s.users.TouchLogin(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateToken(subjectOf(user))
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetUser loads the account behind the authenticated caller
func (s *UserService) GetUser(ctx context.Context, caller *auth.User) (*models.User, error) {
	if caller == nil {
		return nil, apperrors.Unauthenticated
	}
	user, err := s.users.ByID(ctx, caller.ID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}
