// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/cache"
	"cmskit/internal/cms"
	"cmskit/internal/render"
)

// HeaderUnlockToken carries the token returned by the unlock endpoint.
const HeaderUnlockToken = "X-Unlock-Token"

// PayloadCache is the read-through cache in front of public payloads.
// *cache.PayloadCache satisfies it.
type PayloadCache interface {
	Get(ctx context.Context, key string) (*render.Payload, bool)
	Set(ctx context.Context, key string, p *render.Payload)
}

// Public groups the unauthenticated read endpoints. Payloads are served
// from the cache when one is configured; requests with an unlock token
// always bypass it.
type Public struct {
	svc    *cms.Service
	cache  PayloadCache
	logger *slog.Logger
}

// NewPublic creates the public handler group. payloads may be nil.
func NewPublic(svc *cms.Service, payloads PayloadCache, logger *slog.Logger) *Public {
	if logger == nil {
		logger = slog.Default()
	}
	return &Public{svc: svc, cache: payloads, logger: logger}
}

// Payload renders a published item addressed by slug, ?locale and
// ?post_type.
func (p *Public) Payload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	token := r.Header.Get(HeaderUnlockToken)

	sl, locale, postType, err := p.svc.PublicAddress(chi.URLParam(r, "slug"), q.Get("locale"), q.Get("post_type"))
	if err != nil {
		writeError(w, r, p.logger, err)
		return
	}
	key := cache.Key(postType, locale, sl)
	cacheable := p.cache != nil && token == ""

	if cacheable {
		if cached, ok := p.cache.Get(ctx, key); ok {
			w.Header().Set("X-Cache", "HIT")
			p.writePayload(w, r, cached)
			return
		}
	}

	payload, err := p.svc.GetPublicPayloadBySlug(ctx, cms.PublicRequest{
		Slug:        sl,
		Locale:      locale,
		PostType:    postType,
		UnlockToken: token,
	})
	if err != nil {
		writeError(w, r, p.logger, err)
		return
	}
	if cacheable {
		p.cache.Set(ctx, key, payload)
		w.Header().Set("X-Cache", "MISS")
	}
	p.writePayload(w, r, payload)
}

func (p *Public) writePayload(w http.ResponseWriter, r *http.Request, payload *render.Payload) {
	if payload.Protected || r.Header.Get(HeaderUnlockToken) != "" {
		w.Header().Set("Cache-Control", "private, no-store")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	w.Header().Set("ETag", quoteETag(payload.ETag))
	if !payload.Protected && notModified(r, payload.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Unlock checks the password of a protected item and returns an unlock
// token for the X-Unlock-Token header.
func (p *Public) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, p.logger, err)
		return
	}
	q := r.URL.Query()
	grant, err := p.svc.UnlockBySlug(r.Context(), chi.URLParam(r, "slug"), q.Get("locale"), q.Get("post_type"), req.Password)
	if err != nil {
		writeError(w, r, p.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, grant)
}
