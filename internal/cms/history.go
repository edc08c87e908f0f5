// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cmskit/internal/models"
)

// ListHistory returns revisions of cmsUID, newest first. Limit defaults to
// 50 and is capped at 200.
func (s *Service) ListHistory(ctx context.Context, cmsUID string, filter models.HistoryFilter) ([]*models.History, error) {
	filter.Limit = clamp(filter.Limit, defaultListLimit, maxListLimit)
	filter.Offset = max(filter.Offset, 0)

	rows, err := s.conn.ListHistory(ctx, cmsUID, filter)
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", cmsUID, err)
	}
	return rows, nil
}

// RestoreHistoryInput configures RestoreHistoryRevision.
type RestoreHistoryInput struct {
	IfMatch string
	// ConfirmSlugChange allows moving a published item to the revision's
	// slug, locale or post type.
	ConfirmSlugChange bool
	Actor             string
}

// RestoreHistoryRevision copies the content fields of a revision back onto
// the head. The current state is recorded first and the status is kept.
// Restoring a different public address onto a published item requires
// ConfirmSlugChange, as UpdateByUID does.
func (s *Service) RestoreHistoryRevision(ctx context.Context, cmsUID string, historyID int64, in RestoreHistoryInput) (*models.Head, error) {
	rev, err := s.ownedRevision(ctx, cmsUID, historyID)
	if err != nil {
		return nil, err
	}
	if rev.IsSoftDeleted() {
		return nil, historyNotFound(historyID)
	}
	snap := rev.Snapshot
	if !usableSnapshot(snap) {
		return nil, invalid("snapshot", fmt.Sprint(historyID), "revision has no usable snapshot")
	}

	return s.mutate(ctx, cmsUID, mutation{
		op:       EventHistoryRestore,
		ifMatch:  in.IfMatch,
		actor:    in.Actor,
		snapshot: true,
		apply: func(current, next *models.Head, _ time.Time) error {
			moved := snap.Slug != current.Slug || snap.Locale != current.Locale || snap.PostType != current.PostType
			if moved && current.IsPublished() && !in.ConfirmSlugChange {
				return &ConflictError{Reason: ReasonSlugChangeUnconfirmed, CurrentETag: current.ETag}
			}
			next.Title = snap.Title
			next.Content = snap.Content
			next.ContentType = snap.ContentType
			next.Slug = snap.Slug
			next.Locale = snap.Locale
			next.PostType = snap.PostType
			next.Options = slices.Clone(snap.Options)
			if len(next.Options) == 0 {
				next.Options = []byte("{}")
			}
			next.Tags = slices.Clone(snap.Tags)
			return nil
		},
	})
}

// SoftDeleteHistoryRevision hides a revision from default listings. Soft
// deleting twice keeps the first markers.
func (s *Service) SoftDeleteHistoryRevision(ctx context.Context, cmsUID string, historyID int64, actor string) (*models.History, error) {
	rev, err := s.ownedRevision(ctx, cmsUID, historyID)
	if err != nil {
		return nil, err
	}
	if rev.IsSoftDeleted() {
		return rev, nil
	}

	now := s.now()
	rev.SoftDeletedAt = &now
	rev.SoftDeletedBy = optional(actor)
	updated, err := s.conn.UpdateHistoryByID(ctx, historyID, rev)
	if err != nil {
		return nil, fmt.Errorf("soft delete history %d: %w", historyID, err)
	}
	if updated == nil {
		return nil, historyNotFound(historyID)
	}
	return updated, nil
}

// HardDeleteHistoryRevision permanently removes a revision.
func (s *Service) HardDeleteHistoryRevision(ctx context.Context, cmsUID string, historyID int64) error {
	if _, err := s.ownedRevision(ctx, cmsUID, historyID); err != nil {
		return err
	}
	deleted, err := s.conn.DeleteHistoryByID(ctx, historyID)
	if err != nil {
		return fmt.Errorf("delete history %d: %w", historyID, err)
	}
	if !deleted {
		return historyNotFound(historyID)
	}
	return nil
}

// ownedRevision loads a revision and checks it belongs to cmsUID. A revision
// of another item is reported as missing.
func (s *Service) ownedRevision(ctx context.Context, cmsUID string, historyID int64) (*models.History, error) {
	rev, err := s.conn.GetHistoryByID(ctx, historyID)
	if err != nil {
		return nil, fmt.Errorf("get history %d: %w", historyID, err)
	}
	if rev == nil || rev.CmsUID != cmsUID {
		return nil, historyNotFound(historyID)
	}
	return rev, nil
}

func usableSnapshot(snap *models.Snapshot) bool {
	return snap != nil &&
		snap.Slug != "" &&
		snap.Locale != "" &&
		snap.PostType != "" &&
		AssertAllowedContentType(snap.ContentType) == nil
}
