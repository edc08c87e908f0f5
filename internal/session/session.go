// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package session provides Valkey-backed API sessions for admin callers.
// A session maps an opaque bearer token to an actor and its roles, stored
// as JSON in Valkey with automatic TTL expiry.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cmskit/internal/middleware"
)

const (
	// DefaultTTL is how long a session lives in Valkey before automatic expiry.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "cms:session:"

	// idLength is the byte length of the random token (32 bytes = 64 hex chars).
	idLength = 32
)

// Data holds the session payload stored in Valkey.
type Data struct {
	ActorUID  string    `json:"actor_uid"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages session lifecycle in Valkey.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session store backed by the given Valkey client. A
// non-positive ttl uses DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// Issue creates a session for actorUID and returns its bearer token.
func (s *Store) Issue(ctx context.Context, actorUID string, roles []string) (string, error) {
	actorUID = strings.TrimSpace(actorUID)
	if actorUID == "" {
		return "", errors.New("session issue: actor is required")
	}
	token, err := generateID()
	if err != nil {
		return "", fmt.Errorf("session issue: %w", err)
	}

	payload, err := json.Marshal(&Data{ActorUID: actorUID, Roles: roles, CreatedAt: s.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("session marshal: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}
	return token, nil
}

// Lookup returns the session for token, or nil if it expired or never
// existed.
func (s *Store) Lookup(ctx context.Context, token string) (*Data, error) {
	if token == "" {
		return nil, nil
	}
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	return &data, nil
}

// Revoke removes the session. Unknown tokens are not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	return nil
}

// Resolve implements middleware.UserResolver for Authorization: Bearer
// tokens. Requests without a bearer token are anonymous.
func (s *Store) Resolve(r *http.Request) (*middleware.Actor, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, nil
	}
	data, err := s.Lookup(r.Context(), token)
	if err != nil || data == nil {
		return nil, err
	}
	return &middleware.Actor{UID: data.ActorUID, Roles: data.Roles}, nil
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// generateID creates a cryptographically random session identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
