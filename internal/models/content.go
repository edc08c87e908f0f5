// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the head, history and collaborator rows shared by
// the orchestrator, the connectors and the HTTP layer.
package models

import (
	"encoding/json"
	"slices"
	"time"
)

// ContentType selects how a head row's Content is interpreted and rendered.
type ContentType string

const (
	ContentTypeHTML     ContentType = "text/html"
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypeJSON     ContentType = "application/json"
	ContentTypePlain    ContentType = "text/plain"
)

// ContentTypes lists every supported content type in display order.
var ContentTypes = []ContentType{
	ContentTypeHTML,
	ContentTypeMarkdown,
	ContentTypeJSON,
	ContentTypePlain,
}

// Status is the lifecycle state of a head row.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusTrash     Status = "trash"
)

// Head is the current, live version of a CMS item. Every successful
// mutation increments VersionNumber and recomputes ETag.
type Head struct {
	UID         string          `json:"uid"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	ContentType ContentType     `json:"content_type"`
	Slug        string          `json:"slug"`
	Locale      string          `json:"locale"`
	PostType    string          `json:"post_type"`
	Status      Status          `json:"status"`
	Options     json.RawMessage `json:"options"`
	Tags        []string        `json:"tags"`

	PasswordHash    *string `json:"-"`
	PasswordVersion int     `json:"password_version"`

	VersionNumber int64  `json:"version_number"`
	ETag          string `json:"etag"`

	LockedBy *string    `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	PublishedAt      *time.Time `json:"published_at,omitempty"`
	FirstPublishedAt *time.Time `json:"first_published_at,omitempty"`
	TrashedAt        *time.Time `json:"trashed_at,omitempty"`
	TrashedBy        *string    `json:"trashed_by,omitempty"`

	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPublished reports whether the item is publicly visible.
func (h *Head) IsPublished() bool {
	return h.Status == StatusPublished
}

// IsTrashed reports whether the item sits in the trash.
func (h *Head) IsTrashed() bool {
	return h.Status == StatusTrash
}

// HasPassword reports whether the item is password protected.
func (h *Head) HasPassword() bool {
	return h.PasswordHash != nil && *h.PasswordHash != ""
}

// MarshalJSON adds the derived has_password flag; the hash itself is never
// serialized.
func (h Head) MarshalJSON() ([]byte, error) {
	type plain Head
	return json.Marshal(struct {
		plain
		HasPassword bool `json:"has_password"`
	}{plain(h), h.HasPassword()})
}

// Clone returns a deep copy so callers can mutate the result without
// touching shared state.
func (h *Head) Clone() *Head {
	if h == nil {
		return nil
	}
	c := *h
	c.Options = slices.Clone(h.Options)
	c.Tags = slices.Clone(h.Tags)
	c.PasswordHash = cloneString(h.PasswordHash)
	c.LockedBy = cloneString(h.LockedBy)
	c.LockedAt = cloneTime(h.LockedAt)
	c.PublishedAt = cloneTime(h.PublishedAt)
	c.FirstPublishedAt = cloneTime(h.FirstPublishedAt)
	c.TrashedAt = cloneTime(h.TrashedAt)
	c.TrashedBy = cloneString(h.TrashedBy)
	c.CreatedBy = cloneString(h.CreatedBy)
	return &c
}

// ListFilter narrows a head listing. Zero values mean "any".
type ListFilter struct {
	Status   Status
	PostType string
	Locale   string
	Slug     string
	Limit    int
	Offset   int
}

// ListResult is one page of head rows plus the total matching count.
type ListResult struct {
	Items []*Head `json:"items"`
	Total int     `json:"total"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
