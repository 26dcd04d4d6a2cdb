// Package auth issues and checks the bearer tokens used by registrants and admins.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	Role    string `json:"role"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what a token asserts about its holder.
type Identity struct {
	Subject string
	Role    string
	Email   string
	Name    string
}

// Issuer signs tokens with one HS256 key.
type Issuer struct {
	Name       string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issue issues signed access and refresh tokens.
func (is Issuer) Issue(id Identity) (TokenPair, error) {
	now := time.Now()
	if is.Now != nil {
		now = is.Now()
	}
	refreshTTL := is.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	accessExp := now.Add(is.AccessTTL)
	refreshExp := now.Add(refreshTTL)

	sign := func(exp time.Time, refresh bool) (string, error) {
		claims := Claims{
			Role:    id.Role,
			Email:   id.Email,
			Name:    id.Name,
			Refresh: refresh,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    is.Name,
				Subject:   id.Subject,
				ExpiresAt: jwt.NewNumericDate(exp),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(is.Key))
	}

	accessToken, err := sign(accessExp, false)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(refreshExp, true)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token and returns claims.
func (is Issuer) Parse(tokenStr string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if is.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(is.Now))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(is.Key), nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if is.Name != "" && claims.Issuer != is.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// Identity returns the holder described by the claims.
func (c Claims) Identity() Identity {
	return Identity{Subject: c.Subject, Role: c.Role, Email: c.Email, Name: c.Name}
}
