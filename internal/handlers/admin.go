// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/cms"
	"cmskit/internal/middleware"
	"cmskit/internal/models"
)

// Admin groups the authenticated item endpoints.
type Admin struct {
	svc    *cms.Service
	authz  middleware.Authorizer
	logger *slog.Logger
}

// NewAdmin creates the admin handler group. authz is consulted for
// permissions that depend on request parameters, such as forced unlocks.
func NewAdmin(svc *cms.Service, authz middleware.Authorizer, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{svc: svc, authz: authz, logger: logger}
}

// actorUID returns the uid of the resolved caller, or "".
func actorUID(r *http.Request) string {
	if a := middleware.ActorFromCtx(r.Context()); a != nil {
		return a.UID
	}
	return ""
}

func (a *Admin) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, a.logger, err)
}

// createRequest is the body of POST /admin/api/items.
type createRequest struct {
	UID         string             `json:"uid"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	ContentType models.ContentType `json:"content_type"`
	Slug        string             `json:"slug"`
	Locale      string             `json:"locale"`
	PostType    string             `json:"post_type"`
	Options     json.RawMessage    `json:"options"`
	Tags        []string           `json:"tags"`
	Password    string             `json:"password"`
}

// updateRequest is the body of PATCH /admin/api/items/{uid}. Absent fields
// are left untouched; "password": "" clears the password.
type updateRequest struct {
	Title             *string             `json:"title"`
	Content           *string             `json:"content"`
	ContentType       *models.ContentType `json:"content_type"`
	Slug              *string             `json:"slug"`
	Locale            *string             `json:"locale"`
	PostType          *string             `json:"post_type"`
	Options           json.RawMessage     `json:"options"`
	Tags              []string            `json:"tags"`
	Password          *string             `json:"password"`
	ConfirmSlugChange bool                `json:"confirm_slug_change"`
}

// publishRequest is the optional body of the publish endpoint.
type publishRequest struct {
	PublishedAt *time.Time `json:"published_at"`
}

// ListItems returns a page of items filtered by status, post type and
// locale.
func (a *Admin) ListItems(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	res, err := a.svc.List(r.Context(), models.ListFilter{
		Status:   models.Status(q.Get("status")),
		PostType: q.Get("post_type"),
		Locale:   q.Get("locale"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateItem stores a new draft and answers 201 with its Location.
func (a *Admin) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.svc.Create(r.Context(), cms.CreateInput{
		UID:         req.UID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		Slug:        req.Slug,
		Locale:      req.Locale,
		PostType:    req.PostType,
		Options:     req.Options,
		Tags:        req.Tags,
		Password:    req.Password,
		Actor:       actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/api/items/"+h.UID)
	writeHead(w, http.StatusCreated, h)
}

// GetItem returns one item. A matching If-None-Match answers 304.
func (a *Admin) GetItem(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.GetByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if notModified(r, h.ETag) {
		w.Header().Set("ETag", quoteETag(h.ETag))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// UpdateItem patches an item under the If-Match guard.
func (a *Admin) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.svc.UpdateByUID(r.Context(), chi.URLParam(r, "uid"), cms.UpdateInput{
		IfMatch:           ifMatch(r),
		Title:             req.Title,
		Content:           req.Content,
		ContentType:       req.ContentType,
		Slug:              req.Slug,
		Locale:            req.Locale,
		PostType:          req.PostType,
		Options:           req.Options,
		Tags:              req.Tags,
		Password:          req.Password,
		ConfirmSlugChange: req.ConfirmSlugChange,
		Actor:             actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// PublishItem moves an item to published.
func (a *Admin) PublishItem(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.svc.PublishByUID(r.Context(), chi.URLParam(r, "uid"), cms.PublishInput{
		IfMatch:     ifMatch(r),
		PublishedAt: req.PublishedAt,
		Actor:       actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// TrashItem moves an item to the trash.
func (a *Admin) TrashItem(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.TrashByUID(r.Context(), chi.URLParam(r, "uid"), cms.TrashInput{
		IfMatch: ifMatch(r),
		Actor:   actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// RestoreItem takes an item out of the trash as a draft.
func (a *Admin) RestoreItem(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.RestoreByUID(r.Context(), chi.URLParam(r, "uid"), cms.RestoreInput{
		IfMatch: ifMatch(r),
		Actor:   actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// DeleteItem permanently removes a trashed item.
func (a *Admin) DeleteItem(w http.ResponseWriter, r *http.Request) {
	err := a.svc.DeleteByUID(r.Context(), chi.URLParam(r, "uid"), cms.DeleteInput{
		IfMatch: ifMatch(r),
		Actor:   actorUID(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EmptyTrash deletes up to ?limit trashed items.
func (a *Admin) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.svc.EmptyTrash(r.Context(), limit, actorUID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// LockItem takes or refreshes the caller's advisory lock.
func (a *Admin) LockItem(w http.ResponseWriter, r *http.Request) {
	h, err := a.svc.LockByUID(r.Context(), chi.URLParam(r, "uid"), actorUID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// UnlockItem releases the lock. ?force=true overrides another actor's lock
// and needs the force-unlock permission.
func (a *Admin) UnlockItem(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if force && (a.authz == nil || !a.authz.Allowed(middleware.ActorFromCtx(r.Context()), middleware.PermForceUnlock)) {
		a.fail(w, r, &cms.AuthorizationError{Permission: string(middleware.PermForceUnlock)})
		return
	}
	h, err := a.svc.UnlockByUID(r.Context(), chi.URLParam(r, "uid"), actorUID(r), force)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeHead(w, http.StatusOK, h)
}

// notModified reports whether If-None-Match names etag.
func notModified(r *http.Request, etag string) bool {
	inm := r.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	return cms.AssertIfMatch(inm, etag) == nil
}
