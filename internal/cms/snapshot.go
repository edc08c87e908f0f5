// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"fmt"
	"slices"

	"cmskit/internal/models"
)

// NewSnapshot captures the editable fields of h.
func NewSnapshot(h *models.Head) *models.Snapshot {
	return &models.Snapshot{
		Title:       h.Title,
		Content:     h.Content,
		ContentType: h.ContentType,
		Slug:        h.Slug,
		Locale:      h.Locale,
		PostType:    h.PostType,
		Status:      h.Status,
		Options:     slices.Clone(h.Options),
		Tags:        slices.Clone(h.Tags),
	}
}

// Result carries the outcome of a best-effort step.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the step succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// attempt runs fn, converting a panic into an error.
func attempt[T any](fn func() (T, error)) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Result[T]{Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	v, err := fn()
	return Result[T]{Value: v, Err: err}
}

// recordHistory stores the pre-mutation state of current. Failures are
// logged and never fail the calling write.
func (s *Service) recordHistory(ctx context.Context, conn historyWriter, op EventType, current *models.Head, actor string) Result[*models.History] {
	res := attempt(func() (*models.History, error) {
		return conn.InsertHistory(ctx, &models.History{
			CmsUID:    current.UID,
			Revision:  current.VersionNumber,
			Snapshot:  NewSnapshot(current),
			CreatedBy: optional(actor),
			CreatedAt: s.now(),
		})
	})
	if !res.OK() {
		s.logger.Warn("history snapshot failed",
			"uid", current.UID, "op", op, "version", current.VersionNumber, "error", res.Err)
	}
	return res
}

type historyWriter interface {
	InsertHistory(ctx context.Context, h *models.History) (*models.History, error)
}
