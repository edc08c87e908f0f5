// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/cms"
	"cmskit/internal/models"
)

// ListHistory returns revisions of an item, newest first.
// ?include_deleted=true also lists soft-deleted revisions.
func (a *Admin) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	withDeleted, err := queryBool(r, "include_deleted")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rows, err := a.svc.ListHistory(r.Context(), chi.URLParam(r, "uid"), models.HistoryFilter{
		Limit:              limit,
		Offset:             offset,
		IncludeSoftDeleted: withDeleted,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []*models.History{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

type restoreHistoryRequest struct {
	ConfirmSlugChange bool `json:"confirm_slug_change"`
}

// RestoreHistory copies a revision's content back onto the item.
func (a *Admin) RestoreHistory(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req restoreHistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.svc.RestoreHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id, cms.RestoreHistoryInput{
		IfMatch:           ifMatch(r),
		ConfirmSlugChange: req.ConfirmSlugChange,
		Actor:             actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// SoftDeleteHistory hides a revision from the default listing.
func (a *Admin) SoftDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	row, err := a.svc.SoftDeleteHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id, actorUID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HardDeleteHistory permanently removes a revision.
func (a *Admin) HardDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := historyID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.HardDeleteHistoryRevision(r.Context(), chi.URLParam(r, "uid"), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCollaborators returns the item's collaborators in stored order.
func (a *Admin) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	cols, err := a.svc.ListCollaborators(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if cols == nil {
		cols = []models.Collaborator{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cols})
}

// ReplaceCollaborators swaps the full collaborator list.
func (a *Admin) ReplaceCollaborators(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collaborators []cms.CollaboratorInput `json:"collaborators"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	cols, err := a.svc.ReplaceCollaborators(r.Context(), chi.URLParam(r, "uid"), req.Collaborators, actorUID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if cols == nil {
		cols = []models.Collaborator{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cols})
}
