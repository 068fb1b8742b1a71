/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package auth guards the inspection API with HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role grants access to a class of API routes.
type Role string

const (
	// RoleViewer may read snapshots, the journal, logs and the event stream.
	RoleViewer Role = "viewer"
	// RoleOperator may also inject directives, cancel dialogs and stop plays.
	RoleOperator Role = "operator"
)

var (
	// ErrInvalidToken is returned for tokens that fail to parse or verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidRole is returned when issuing a token for an unknown role.
	ErrInvalidRole = errors.New("invalid role")
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Claims extends standard registered claims with the caller's roles.
type Claims struct {
	Roles []Role `json:"roles"`
	jwt.RegisteredClaims
}

// Has reports whether the claims carry role. Operators implicitly view.
func (c *Claims) Has(role Role) bool {
	if slices.Contains(c.Roles, role) {
		return true
	}
	return role == RoleViewer && slices.Contains(c.Roles, RoleOperator)
}

// Issue creates a signed HS256 token valid for ttl.
func Issue(secret []byte, subject string, roles []Role, ttl time.Duration) (string, error) {
	for _, r := range roles {
		if _, err := ParseRole(string(r)); err != nil {
			return "", err
		}
	}
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
			Issuer:    "grimnir_voice",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token string. Only HS256 is accepted.
func Parse(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
