// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/cms"
	"cmskit/internal/models"
)

// ErrNotConfigured is returned by maintenance endpoints whose backing
// service was not set up.
var ErrNotConfigured = errors.New("handlers: feature not configured")

// CacheFlusher drops every cached public payload.
type CacheFlusher interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// ArchiveReader reads permanently deleted items back from the archive.
// Lookups return (nil, nil) when nothing was archived.
type ArchiveReader interface {
	Fetch(ctx context.Context, uid string, version int64) (*models.Head, error)
}

// Maintenance groups operator endpoints. Either dependency may be nil.
type Maintenance struct {
	cache   CacheFlusher
	archive ArchiveReader
	logger  *slog.Logger
}

// NewMaintenance creates the maintenance handler group.
func NewMaintenance(cache CacheFlusher, archive ArchiveReader, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{cache: cache, archive: archive, logger: logger}
}

// FlushCache clears the whole public payload cache.
func (m *Maintenance) FlushCache(w http.ResponseWriter, r *http.Request) {
	if m.cache == nil {
		writeError(w, r, m.logger, ErrNotConfigured)
		return
	}
	n, err := m.cache.InvalidateAll(r.Context())
	if err != nil {
		writeError(w, r, m.logger, err)
		return
	}
	m.logger.Info("payload cache flushed", "deleted", n, "actor", actorUID(r))
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ArchivedItem returns the final row of a deleted item.
func (m *Maintenance) ArchivedItem(w http.ResponseWriter, r *http.Request) {
	if m.archive == nil {
		writeError(w, r, m.logger, ErrNotConfigured)
		return
	}
	uid := chi.URLParam(r, "uid")
	raw := chi.URLParam(r, "version")
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		writeError(w, r, m.logger, &cms.ValidationError{Field: "version", Value: raw, Message: "must be a positive integer"})
		return
	}

	h, err := m.archive.Fetch(r.Context(), uid, version)
	if err != nil {
		writeError(w, r, m.logger, err)
		return
	}
	if h == nil {
		writeError(w, r, m.logger, &cms.NotFoundError{Resource: "archived item", ID: uid + "@" + raw})
		return
	}
	writeJSON(w, http.StatusOK, h)
}
