// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package memory is an in-process connector backed by mutex-guarded maps.
// It supports every optional capability and is used by tests and by
// CMS_CONNECTOR=memory development runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"cmskit/internal/connector"
	"cmskit/internal/models"
)

// Connector keeps heads, history and collaborators in memory. Every value
// crossing the API boundary is cloned.
type Connector struct {
	*state
	// inTx marks the view handed to WithTx callbacks, which already holds
	// the gate exclusively.
	inTx bool
}

type state struct {
	// gate is held shared by every call and exclusively by WithTx, so a
	// rollback never discards writes made outside the transaction.
	gate sync.RWMutex

	mu            sync.RWMutex
	heads         map[string]*models.Head
	history       map[int64]*models.History
	collaborators map[string][]models.Collaborator
	nextHistoryID int64
}

var (
	_ connector.Connector        = (*Connector)(nil)
	_ connector.PublicHeadReader = (*Connector)(nil)
	_ connector.PublishedReader  = (*Connector)(nil)
	_ connector.Transactor       = (*Connector)(nil)
	_ connector.LinkStore        = (*Connector)(nil)
)

// New returns an empty memory connector.
func New() *Connector {
	return &Connector{state: &state{
		heads:         make(map[string]*models.Head),
		history:       make(map[int64]*models.History),
		collaborators: make(map[string][]models.Collaborator),
	}}
}

// enter holds the gate for one call and returns its release.
func (c *Connector) enter() func() {
	if c.inTx {
		return func() {}
	}
	c.gate.RLock()
	return c.gate.RUnlock
}

// Capabilities advertises every optional feature.
func (c *Connector) Capabilities() []connector.Capability {
	return []connector.Capability{
		connector.CapPublicHead,
		connector.CapPublishedBySlug,
		connector.CapTransactions,
		connector.CapEntityLinks,
	}
}

// GetByUID returns a copy of the head row, or nil if absent.
func (c *Connector) GetByUID(_ context.Context, uid string) (*models.Head, error) {
	defer c.enter()()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heads[uid].Clone(), nil
}

// List returns heads matching filter, newest first.
func (c *Connector) List(_ context.Context, filter models.ListFilter) (*models.ListResult, error) {
	defer c.enter()()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*models.Head
	for _, h := range c.heads {
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		if filter.PostType != "" && h.PostType != filter.PostType {
			continue
		}
		if filter.Locale != "" && h.Locale != filter.Locale {
			continue
		}
		if filter.Slug != "" && h.Slug != filter.Slug {
			continue
		}
		matched = append(matched, h)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].UID < matched[j].UID
	})

	result := &models.ListResult{Total: len(matched), Items: []*models.Head{}}
	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	for _, h := range matched[start:end] {
		result.Items = append(result.Items, h.Clone())
	}
	return result, nil
}

// Insert stores a new head row.
func (c *Connector) Insert(_ context.Context, head *models.Head) (*models.Head, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.heads[head.UID]; exists {
		return nil, fmt.Errorf("insert %s: uid already exists", head.UID)
	}
	if c.slugTakenLocked(head) {
		return nil, connector.ErrDuplicateSlug
	}
	c.heads[head.UID] = head.Clone()
	return head.Clone(), nil
}

// UpdateByUID replaces the row when the stored version equals expectedVersion.
func (c *Connector) UpdateByUID(_ context.Context, uid string, expectedVersion int64, next *models.Head) (*models.Head, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.heads[uid]
	if !ok {
		return nil, nil
	}
	if current.VersionNumber != expectedVersion {
		return nil, connector.ErrVersionMismatch
	}

	kept := current.Clone()
	row := next.Clone()
	row.UID = uid
	row.CreatedAt = kept.CreatedAt
	row.CreatedBy = kept.CreatedBy
	row.LockedBy = kept.LockedBy
	row.LockedAt = kept.LockedAt
	if c.slugTakenLocked(row) {
		return nil, connector.ErrDuplicateSlug
	}
	c.heads[uid] = row
	return row.Clone(), nil
}

// SetLock takes or releases the advisory lock on uid when req's condition
// holds against the stored row.
func (c *Connector) SetLock(_ context.Context, uid string, req connector.LockRequest) (*models.Head, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.heads[uid]
	if !ok {
		return nil, nil
	}
	if !lockAllows(current, req) {
		return nil, connector.ErrLockHeld
	}
	row := current.Clone()
	if req.Release {
		row.LockedBy, row.LockedAt = nil, nil
	} else {
		actor, at := req.Actor, req.At
		row.LockedBy, row.LockedAt = &actor, &at
	}
	c.heads[uid] = row
	return row.Clone(), nil
}

// lockAllows matches the WHERE clause of the PostgreSQL SetLock.
func lockAllows(h *models.Head, req connector.LockRequest) bool {
	if h.LockedBy == nil || *h.LockedBy == req.Actor {
		return true
	}
	if req.Release {
		return req.Force
	}
	return *h.LockedBy == "" || h.LockedAt == nil || !h.LockedAt.After(req.StaleBefore)
}

// DeleteByUID removes the head row and its collaborator links. History rows
// are left in place.
func (c *Connector) DeleteByUID(_ context.Context, uid string) (bool, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.heads[uid]; !ok {
		return false, nil
	}
	delete(c.heads, uid)
	delete(c.collaborators, uid)
	return true, nil
}

// InsertHistory stores a history row under the next sequential id.
func (c *Connector) InsertHistory(_ context.Context, h *models.History) (*models.History, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHistoryID++
	row := h.Clone()
	row.ID = c.nextHistoryID
	c.history[row.ID] = row
	return row.Clone(), nil
}

// GetHistoryByID returns a copy of the history row, or nil if absent.
func (c *Connector) GetHistoryByID(_ context.Context, id int64) (*models.History, error) {
	defer c.enter()()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history[id].Clone(), nil
}

// UpdateHistoryByID replaces the soft-delete markers of a history row.
func (c *Connector) UpdateHistoryByID(_ context.Context, id int64, h *models.History) (*models.History, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.history[id]
	if !ok {
		return nil, nil
	}
	row := current.Clone()
	row.SoftDeletedAt = h.Clone().SoftDeletedAt
	row.SoftDeletedBy = h.Clone().SoftDeletedBy
	c.history[id] = row
	return row.Clone(), nil
}

// DeleteHistoryByID permanently removes a history row.
func (c *Connector) DeleteHistoryByID(_ context.Context, id int64) (bool, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.history[id]; !ok {
		return false, nil
	}
	delete(c.history, id)
	return true, nil
}

// ListHistory returns history rows for cmsUID, newest first.
func (c *Connector) ListHistory(_ context.Context, cmsUID string, filter models.HistoryFilter) ([]*models.History, error) {
	defer c.enter()()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*models.History
	for _, h := range c.history {
		if h.CmsUID != cmsUID {
			continue
		}
		if h.IsSoftDeleted() && !filter.IncludeSoftDeleted {
			continue
		}
		matched = append(matched, h)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	out := make([]*models.History, 0, end-start)
	for _, h := range matched[start:end] {
		out = append(out, h.Clone())
	}
	return out, nil
}

// GetPublicHeadBySlug returns the published head without its content body.
func (c *Connector) GetPublicHeadBySlug(_ context.Context, slug, locale, postType string) (*models.Head, error) {
	defer c.enter()()
	h := c.publishedBySlug(slug, locale, postType)
	if h != nil {
		h.Content = ""
	}
	return h, nil
}

// GetPublishedBySlug returns the full published row for a slug.
func (c *Connector) GetPublishedBySlug(_ context.Context, slug, locale, postType string) (*models.Head, error) {
	defer c.enter()()
	return c.publishedBySlug(slug, locale, postType), nil
}

func (c *Connector) publishedBySlug(slug, locale, postType string) *models.Head {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, h := range c.heads {
		if h.Slug == slug && h.Locale == locale && h.PostType == postType && h.IsPublished() {
			return h.Clone()
		}
	}
	return nil
}

// ListCollaborators returns the collaborators linked to cmsUID.
func (c *Connector) ListCollaborators(_ context.Context, cmsUID string) ([]models.Collaborator, error) {
	defer c.enter()()
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Collaborator, len(c.collaborators[cmsUID]))
	copy(out, c.collaborators[cmsUID])
	return out, nil
}

// ReplaceCollaborators swaps the full collaborator list for cmsUID.
func (c *Connector) ReplaceCollaborators(_ context.Context, cmsUID string, collaborators []models.Collaborator) ([]models.Collaborator, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]models.Collaborator, len(collaborators))
	copy(stored, collaborators)
	c.collaborators[cmsUID] = stored

	out := make([]models.Collaborator, len(stored))
	copy(out, stored)
	return out, nil
}

// WithTx runs fn with the gate held exclusively, so no other call
// interleaves with the transaction. On error the state captured when the
// transaction began is restored. Nested calls reuse the outer transaction.
func (c *Connector) WithTx(_ context.Context, fn func(tx connector.Connector) error) error {
	if c.inTx {
		return fn(c)
	}
	c.gate.Lock()
	defer c.gate.Unlock()

	c.mu.RLock()
	heads := cloneHeads(c.heads)
	history := cloneHistory(c.history)
	collaborators := maps.Clone(c.collaborators)
	nextID := c.nextHistoryID
	c.mu.RUnlock()

	if err := fn(&Connector{state: c.state, inTx: true}); err != nil {
		c.mu.Lock()
		c.heads, c.history, c.collaborators, c.nextHistoryID = heads, history, collaborators, nextID
		c.mu.Unlock()
		return err
	}
	return nil
}

// slugTakenLocked reports whether another row already owns h's slug within
// the same locale and post type. Caller holds c.mu.
func (c *Connector) slugTakenLocked(h *models.Head) bool {
	for uid, other := range c.heads {
		if uid == h.UID {
			continue
		}
		if other.Slug == h.Slug && other.Locale == h.Locale && other.PostType == h.PostType {
			return true
		}
	}
	return false
}

func cloneHeads(in map[string]*models.Head) map[string]*models.Head {
	out := make(map[string]*models.Head, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

func cloneHistory(in map[int64]*models.History) map[int64]*models.History {
	out := make(map[int64]*models.History, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
