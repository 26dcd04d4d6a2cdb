// Package account manages registrant accounts and admin sign-in.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"conference/internal/auth"
	"conference/internal/docstore"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalid            = errors.New("invalid account details")
	ErrNotFound           = errors.New("account not found")
)

const (
	collection        = "users"
	minPasswordLength = 8
)

// User is a registrant account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Affiliation  string    `json:"affiliation,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Admin holds the single configured administrator.
type Admin struct {
	Email        string
	PasswordHash string
}

// Service signs users up and in.
type Service struct {
	docs   docstore.Store
	tokens auth.Issuer
	admin  Admin
	now    func() time.Time
}

// NewService creates a service.
func NewService(docs docstore.Store, tokens auth.Issuer, admin Admin, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	admin.Email = normalizeEmail(admin.Email)
	return &Service{docs: docs, tokens: tokens, admin: admin, now: now}
}

// Signup creates an account and returns tokens for it.
func (s *Service) Signup(ctx context.Context, email, password, name, affiliation string) (User, auth.TokenPair, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, auth.TokenPair{}, fmt.Errorf("%w: email", ErrInvalid)
	}
	if len(password) < minPasswordLength {
		return User{}, auth.TokenPair{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	if email == s.admin.Email {
		return User{}, auth.TokenPair{}, ErrEmailTaken
	}
	if _, err := s.byEmail(ctx, email); err == nil {
		return User{}, auth.TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, auth.TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, auth.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Affiliation:  strings.TrimSpace(affiliation),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.docs.Put(ctx, collection, u.ID, u); err != nil {
		return User{}, auth.TokenPair{}, fmt.Errorf("save user: %w", err)
	}
	pair, err := s.tokens.Issue(identity(u))
	return u, pair, err
}

// Login checks a registrant's password.
func (s *Service) Login(ctx context.Context, email, password string) (User, auth.TokenPair, error) {
	u, err := s.byEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, auth.TokenPair{}, ErrInvalidCredentials
		}
		return User{}, auth.TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, auth.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.Issue(identity(u))
	return u, pair, err
}

// AdminLogin checks the configured admin credentials. Without a configured
// hash admin sign-in is disabled.
func (s *Service) AdminLogin(email, password string) (auth.TokenPair, error) {
	if s.admin.PasswordHash == "" || normalizeEmail(email) != s.admin.Email {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)) != nil {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(auth.Identity{Subject: "admin", Role: auth.RoleAdmin, Email: s.admin.Email, Name: "Administrator"})
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(token string) (auth.TokenPair, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil || !claims.Refresh {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(claims.Identity())
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	var u User
	if err := s.docs.Get(ctx, collection, id, &u); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *Service) byEmail(ctx context.Context, email string) (User, error) {
	var found []User
	if err := s.docs.Find(ctx, collection, docstore.Filter{"email": email}, &found); err != nil {
		return User{}, err
	}
	if len(found) == 0 {
		return User{}, ErrNotFound
	}
	return found[0], nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func identity(u User) auth.Identity {
	return auth.Identity{Subject: u.ID, Role: auth.RoleUser, Email: u.Email, Name: u.Name}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
