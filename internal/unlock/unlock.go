// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package unlock issues and verifies signed tokens that grant read access
// to a password-protected item. A token is bound to the item's password
// version, so changing or clearing the password revokes it.
package unlock

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of an unlock token.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid unlock token")
	ErrTokenExpired = errors.New("unlock token expired")
)

// Claims carries the item uid and password version in addition to the
// registered expiry.
type Claims struct {
	jwt.RegisteredClaims
	UID             string `json:"uid"`
	PasswordVersion int    `json:"pv"`
}

// Issuer signs unlock tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. A non-positive ttl uses DefaultTTL.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a token for uid at password version pv and its expiry.
func (i *Issuer) Issue(uid string, pv int) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UID:             uid,
		PasswordVersion: pv,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign unlock token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature and expiry of token and that it was issued
// for uid at password version pv.
func (i *Issuer) Verify(token, uid string, pv int) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.UID != uid || claims.PasswordVersion != pv {
		return ErrInvalidToken
	}
	return nil
}
