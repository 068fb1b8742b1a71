/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestParse_ValidHS256(t *testing.T) {
	token, err := Issue(testSecret, "bench", []Role{RoleOperator}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "bench", claims.Subject)
	assert.True(t, claims.Has(RoleOperator))
	assert.True(t, claims.Has(RoleViewer), "operators can view")
}

func TestParse_ViewerIsNotOperator(t *testing.T) {
	token, err := Issue(testSecret, "dashboard", []Role{RoleViewer}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(testSecret, token)
	require.NoError(t, err)
	assert.True(t, claims.Has(RoleViewer))
	assert.False(t, claims.Has(RoleOperator))
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Roles: []Role{RoleOperator},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "bench",
		},
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = Parse(testSecret, tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsExpiredAndForeignTokens(t *testing.T) {
	expired, err := Issue(testSecret, "bench", []Role{RoleViewer}, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(testSecret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := Issue([]byte("other-secret"), "bench", []Role{RoleViewer}, time.Hour)
	require.NoError(t, err)
	_, err = Parse(testSecret, foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse(testSecret, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssue_RejectsUnknownRole(t *testing.T) {
	_, err := Issue(testSecret, "bench", []Role{"admin"}, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidRole)
}
