// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrLocked          = errors.New("locked")
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Conflict reasons.
const (
	ReasonETagMismatch          = "etag_mismatch"
	ReasonSlugChangeUnconfirmed = "slug_change_unconfirmed"
	ReasonConcurrentWrite       = "concurrent_write"
)

// NotFoundError reports a missing head row or history revision, or a write
// that raced against a delete.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a stale conditional token or a destructive change
// that needs explicit confirmation. CurrentETag lets the caller offer
// reload-or-overwrite.
type ConflictError struct {
	Reason      string
	CurrentETag string
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ReasonSlugChangeUnconfirmed:
		return "changing the slug of a published item requires confirmation"
	case ReasonConcurrentWrite:
		return "item was modified concurrently"
	default:
		return "etag mismatch"
	}
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// LockedError reports an advisory lock held by another actor.
type LockedError struct {
	LockedBy string
	LockedAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked by %s since %s", e.LockedBy, e.LockedAt.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// ValidationError reports malformed or disallowed input.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AuthenticationError reports missing or invalid credentials.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

func (e *AuthenticationError) Is(target error) bool { return target == ErrUnauthenticated }

// AuthorizationError reports an actor lacking a permission.
type AuthorizationError struct {
	Permission string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("missing permission %q", e.Permission)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

func notFound(uid string) error {
	return &NotFoundError{Resource: "item", ID: uid}
}

func historyNotFound(id int64) error {
	return &NotFoundError{Resource: "history revision", ID: fmt.Sprint(id)}
}

func invalid(field, value, message string) error {
	return &ValidationError{Field: field, Value: value, Message: message}
}
