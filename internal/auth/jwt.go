/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the control API.
const (
	RoleOperator = "operator" // may skip, reload, change strategy, stop live
	RoleViewer   = "viewer"   // read-only status and history
)

// Claims extends standard registered claims with role and station.
type Claims struct {
	UserID    string   `json:"uid"`
	Roles     []string `json:"roles"`
	StationID string   `json:"station_id,omitempty"` // empty grants every station
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries role. Operators may also view.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	if slices.Contains(c.Roles, role) {
		return true
	}
	return role == RoleViewer && slices.Contains(c.Roles, RoleOperator)
}

// CoversStation reports whether the token is scoped to stationID.
func (c *Claims) CoversStation(stationID string) bool {
	return c != nil && (c.StationID == "" || c.StationID == stationID)
}

// Issue creates JWT token string.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   claims.UserID,
		Issuer:    "grimnir-playout",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates token string. Only HS256 is accepted.
func Parse(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
