// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// ActorKey is the context key for the resolved actor.
const ActorKey contextKey = "actor"

// Headers read by HeaderResolver.
const (
	HeaderActorUID   = "X-Actor-Uid"
	HeaderActorRoles = "X-Actor-Roles"
)

// Actor is the authenticated caller of an admin request.
type Actor struct {
	UID   string
	Roles []string
}

// HasRole reports whether the actor carries role.
func (a *Actor) HasRole(role string) bool {
	return a != nil && slices.Contains(a.Roles, role)
}

// UserResolver identifies the caller of a request. It returns (nil, nil)
// for anonymous requests. Authentication itself happens upstream.
type UserResolver interface {
	Resolve(r *http.Request) (*Actor, error)
}

// HeaderResolver trusts identity headers set by an authenticating proxy.
type HeaderResolver struct{}

// Resolve reads X-Actor-Uid and the comma separated X-Actor-Roles.
func (HeaderResolver) Resolve(r *http.Request) (*Actor, error) {
	uid := strings.TrimSpace(r.Header.Get(HeaderActorUID))
	if uid == "" {
		return nil, nil
	}
	var roles []string
	for _, role := range strings.Split(r.Header.Get(HeaderActorRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return &Actor{UID: uid, Roles: roles}, nil
}

// ChainResolver asks each resolver in turn and returns the first actor
// found. An error stops the chain.
type ChainResolver []UserResolver

// Resolve implements UserResolver.
func (c ChainResolver) Resolve(r *http.Request) (*Actor, error) {
	for _, res := range c {
		if res == nil {
			continue
		}
		a, err := res.Resolve(r)
		if err != nil || a != nil {
			return a, err
		}
	}
	return nil, nil
}

// ResolveActor stores the caller in the request context. It does NOT
// enforce authentication; resolver errors are logged and the request
// continues anonymously.
func ResolveActor(resolver UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.Resolve(r)
			if err != nil {
				logger.Warn("actor resolution failed", "path", r.URL.Path, "error", err)
			}
			if actor != nil {
				r = r.WithContext(context.WithValue(r.Context(), ActorKey, actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor answers 401 when no actor was resolved.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ActorFromCtx(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromCtx extracts the actor from the request context. Returns nil
// for anonymous requests.
func ActorFromCtx(ctx context.Context) *Actor {
	a, _ := ctx.Value(ActorKey).(*Actor)
	return a
}

// Permission names an admin capability.
type Permission string

const (
	PermRead          Permission = "cms.read"
	PermWrite         Permission = "cms.write"
	PermPublish       Permission = "cms.publish"
	PermDelete        Permission = "cms.delete"
	PermForceUnlock   Permission = "cms.lock.force"
	PermCollaborators Permission = "cms.collaborators"
	PermHistory       Permission = "cms.history"
	PermMaintenance   Permission = "cms.maintenance"
)

// Authorizer decides whether an actor holds a permission.
type Authorizer interface {
	Allowed(a *Actor, perm Permission) bool
}

// StaticAuthorizer grants permissions by role.
type StaticAuthorizer map[string][]Permission

// DefaultAuthorizer gives admins everything, editors everything except
// destructive and override operations, and viewers read access.
func DefaultAuthorizer() StaticAuthorizer {
	return StaticAuthorizer{
		"admin":  {PermRead, PermWrite, PermPublish, PermDelete, PermForceUnlock, PermCollaborators, PermHistory, PermMaintenance},
		"editor": {PermRead, PermWrite, PermPublish, PermHistory},
		"viewer": {PermRead},
	}
}

// Allowed reports whether any of the actor's roles grants perm.
func (s StaticAuthorizer) Allowed(a *Actor, perm Permission) bool {
	if a == nil {
		return false
	}
	for _, role := range a.Roles {
		if slices.Contains(s[role], perm) {
			return true
		}
	}
	return false
}

// RequirePermission answers 401 for anonymous callers and 403 when the
// actor lacks perm.
func RequirePermission(authz Authorizer, perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := ActorFromCtx(r.Context())
			if a == nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !authz.Allowed(a, perm) {
				writeError(w, http.StatusForbidden, "forbidden", "missing permission "+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError sends the JSON error body shared with the handlers package.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
