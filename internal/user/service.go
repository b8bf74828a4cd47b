package user

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"privchat/internal/auth"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidUsername    = errors.New("username must be 3-50 characters, letters, digits or underscores")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type Service struct {
	repo   *Repository
	tokens *auth.Service
}

func NewService(repo *Repository, tokens *auth.Service) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Signup creates an account and returns a signed token for it.
func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*AuthResponse, error) {
	if err := validateUsername(req.Username); err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	existing, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UnixMilli()
	u := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResponse{AccessToken: token, ID: u.ID, Username: u.Username}, nil
}

// Login verifies credentials and returns a signed token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Deleted() {
		// Burn a comparison so response timing does not leak whether the
		// account exists.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000u"), []byte(req.Password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResponse{AccessToken: token, ID: u.ID, Username: u.Username}, nil
}

// Search returns public profiles whose username starts with prefix.
func (s *Service) Search(ctx context.Context, prefix, requesterID string, limit int) ([]*Profile, error) {
	if prefix == "" {
		return []*Profile{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	profiles, err := s.repo.SearchUsers(ctx, prefix, requesterID, limit)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []*Profile{}
	}
	return profiles, nil
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return ErrInvalidUsername
		}
	}
	return nil
}
