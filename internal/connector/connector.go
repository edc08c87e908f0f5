// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package connector defines the persistence port consumed by the CMS
// orchestrator. A connector owns every durable-storage guarantee, including
// the atomic compare-and-write behind UpdateByUID.
//
// Optional behavior is expressed as named capability interfaces. Callers
// ask for them through Supports and the typed accessors below rather than
// probing for methods ad hoc.
package connector

import (
	"context"
	"errors"
	"time"

	"cmskit/internal/models"
)

var (
	// ErrVersionMismatch is returned by UpdateByUID when the stored
	// version_number no longer equals the expected one.
	ErrVersionMismatch = errors.New("connector: version mismatch")
	// ErrDuplicateSlug is returned when a write would break slug uniqueness
	// within a locale and post type.
	ErrDuplicateSlug = errors.New("connector: duplicate slug")
	// ErrUnsupported is returned when a required capability is missing.
	ErrUnsupported = errors.New("connector: capability not supported")
	// ErrLockHeld is returned by SetLock when the lock condition failed.
	ErrLockHeld = errors.New("connector: lock held by another actor")
)

// LockRequest is a conditional write of locked_by and locked_at.
type LockRequest struct {
	Actor string
	// At becomes locked_at when acquiring.
	At time.Time
	// StaleBefore marks locks taken at or before it as expired.
	StaleBefore time.Time
	// Release clears the lock instead of taking it.
	Release bool
	// Force releases a lock held by another actor.
	Force bool
}

// Connector is the base storage port every implementation provides.
//
// Lookups return (nil, nil) when the row does not exist; "not found" is
// never an error at this layer.
type Connector interface {
	GetByUID(ctx context.Context, uid string) (*models.Head, error)
	List(ctx context.Context, filter models.ListFilter) (*models.ListResult, error)
	Insert(ctx context.Context, head *models.Head) (*models.Head, error)
	// UpdateByUID overwrites the mutable columns of uid with next, but only
	// if the stored version_number equals expectedVersion. The compare and
	// the write must be a single atomic step. Returns (nil, nil) if the row
	// is gone and ErrVersionMismatch if another writer got there first.
	// locked_by and locked_at are not mutable here; they belong to SetLock.
	UpdateByUID(ctx context.Context, uid string, expectedVersion int64, next *models.Head) (*models.Head, error)
	// SetLock writes only locked_by and locked_at, leaving the version
	// alone. Acquiring succeeds when the row is unlocked, already held by
	// req.Actor, or locked at or before req.StaleBefore. Releasing succeeds
	// when the row is unlocked, held by req.Actor, or req.Force is set. The
	// check and the write must be a single atomic step. Returns (nil, nil)
	// if the row is gone and ErrLockHeld if the condition failed.
	SetLock(ctx context.Context, uid string, req LockRequest) (*models.Head, error)
	// DeleteByUID permanently removes the head row. Reports whether a row
	// was deleted.
	DeleteByUID(ctx context.Context, uid string) (bool, error)

	InsertHistory(ctx context.Context, h *models.History) (*models.History, error)
	GetHistoryByID(ctx context.Context, id int64) (*models.History, error)
	UpdateHistoryByID(ctx context.Context, id int64, h *models.History) (*models.History, error)
	DeleteHistoryByID(ctx context.Context, id int64) (bool, error)
	ListHistory(ctx context.Context, cmsUID string, filter models.HistoryFilter) ([]*models.History, error)
}

// Capability names an optional connector feature.
type Capability string

const (
	// CapPublicHead is a lightweight published-head lookup by slug, used for
	// existence and password-gate checks without loading full content.
	CapPublicHead Capability = "public_head"
	// CapPublishedBySlug is a full published-row lookup by slug.
	CapPublishedBySlug Capability = "published_by_slug"
	// CapTransactions runs a function inside a storage transaction.
	CapTransactions Capability = "transactions"
	// CapEntityLinks stores entity-scoped links such as collaborators.
	CapEntityLinks Capability = "entity_links"
)

// PublicHeadReader returns the published head for a slug. Implementations
// may leave Content empty.
type PublicHeadReader interface {
	GetPublicHeadBySlug(ctx context.Context, slug, locale, postType string) (*models.Head, error)
}

// PublishedReader returns the full published row for a slug.
type PublishedReader interface {
	GetPublishedBySlug(ctx context.Context, slug, locale, postType string) (*models.Head, error)
}

// Transactor runs fn with a connector bound to a single transaction. The
// transaction commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Connector) error) error
}

// LinkStore manages collaborator links for a head row.
type LinkStore interface {
	ListCollaborators(ctx context.Context, cmsUID string) ([]models.Collaborator, error)
	ReplaceCollaborators(ctx context.Context, cmsUID string, collaborators []models.Collaborator) ([]models.Collaborator, error)
}

// CapabilitySet is implemented by connectors that advertise their optional
// features explicitly.
type CapabilitySet interface {
	Capabilities() []Capability
}

// Supports reports whether c advertises want and implements its interface.
func Supports(c Connector, want Capability) bool {
	cs, ok := c.(CapabilitySet)
	if !ok {
		return false
	}
	advertised := false
	for _, have := range cs.Capabilities() {
		if have == want {
			advertised = true
			break
		}
	}
	if !advertised {
		return false
	}

	switch want {
	case CapPublicHead:
		_, ok = c.(PublicHeadReader)
	case CapPublishedBySlug:
		_, ok = c.(PublishedReader)
	case CapTransactions:
		_, ok = c.(Transactor)
	case CapEntityLinks:
		_, ok = c.(LinkStore)
	default:
		ok = false
	}
	return ok
}

// AsPublicHeadReader returns the public-head capability of c, if supported.
func AsPublicHeadReader(c Connector) (PublicHeadReader, bool) {
	if !Supports(c, CapPublicHead) {
		return nil, false
	}
	return c.(PublicHeadReader), true
}

// AsPublishedReader returns the published-by-slug capability of c, if supported.
func AsPublishedReader(c Connector) (PublishedReader, bool) {
	if !Supports(c, CapPublishedBySlug) {
		return nil, false
	}
	return c.(PublishedReader), true
}

// AsTransactor returns the transaction capability of c, if supported.
func AsTransactor(c Connector) (Transactor, bool) {
	if !Supports(c, CapTransactions) {
		return nil, false
	}
	return c.(Transactor), true
}

// AsLinkStore returns the entity-link capability of c, if supported.
func AsLinkStore(c Connector) (LinkStore, bool) {
	if !Supports(c, CapEntityLinks) {
		return nil, false
	}
	return c.(LinkStore), true
}
