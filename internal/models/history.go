// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"encoding/json"
	"slices"
	"time"
)

// Snapshot is the immutable copy of a head row's mutable fields.
type Snapshot struct {
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	ContentType ContentType     `json:"content_type"`
	Slug        string          `json:"slug"`
	Locale      string          `json:"locale"`
	PostType    string          `json:"post_type"`
	Status      Status          `json:"status"`
	Options     json.RawMessage `json:"options,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// History stores what a head row looked like right before a mutation.
// Revision is the version number the snapshot was taken at.
type History struct {
	ID            int64      `json:"id"`
	CmsUID        string     `json:"cms_uid"`
	Revision      int64      `json:"revision"`
	Snapshot      *Snapshot  `json:"snapshot"`
	CreatedBy     *string    `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SoftDeletedAt *time.Time `json:"soft_deleted_at,omitempty"`
	SoftDeletedBy *string    `json:"soft_deleted_by,omitempty"`
}

// IsSoftDeleted reports whether the revision has been hidden from listings.
func (h *History) IsSoftDeleted() bool {
	return h.SoftDeletedAt != nil
}

// Clone returns a deep copy of the history row.
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	c := *h
	if h.Snapshot != nil {
		s := *h.Snapshot
		s.Options = slices.Clone(h.Snapshot.Options)
		s.Tags = slices.Clone(h.Snapshot.Tags)
		c.Snapshot = &s
	}
	c.CreatedBy = cloneString(h.CreatedBy)
	c.SoftDeletedAt = cloneTime(h.SoftDeletedAt)
	c.SoftDeletedBy = cloneString(h.SoftDeletedBy)
	return &c
}

// HistoryFilter paginates a history listing.
type HistoryFilter struct {
	Limit              int
	Offset             int
	IncludeSoftDeleted bool
}

// Collaborator links a user to a CMS item. Collaborator lists are replaced
// wholesale, never patched.
type Collaborator struct {
	CmsUID  string    `json:"cms_uid"`
	UserUID string    `json:"user_uid"`
	Role    string    `json:"role"`
	AddedBy *string   `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
