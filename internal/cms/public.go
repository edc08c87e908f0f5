// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cmskit/internal/connector"
	"cmskit/internal/models"
	"cmskit/internal/render"
	"cmskit/internal/slug"
)

// ErrUnlockDisabled is returned by UnlockBySlug when no token issuer is set.
var ErrUnlockDisabled = errors.New("unlock tokens are not configured")

// PublicRequest addresses a published item. UnlockToken is only needed for
// password-protected items.
type PublicRequest struct {
	Slug        string
	Locale      string
	PostType    string
	UnlockToken string
}

// UnlockGrant is returned by a successful password unlock.
type UnlockGrant struct {
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetPublicHead returns the metadata of a published item. Content may be
// empty when the connector serves head-only lookups.
func (s *Service) GetPublicHead(ctx context.Context, rawSlug, locale, postType string) (*models.Head, error) {
	sl, l, pt, err := s.PublicAddress(rawSlug, locale, postType)
	if err != nil {
		return nil, err
	}
	h, err := s.readPublicHead(ctx, sl, l, pt)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, notFound(sl)
	}
	return h, nil
}

// GetPublicPayloadBySlug renders a published item. Protected items without
// a valid unlock token render as metadata only.
func (s *Service) GetPublicPayloadBySlug(ctx context.Context, req PublicRequest) (*render.Payload, error) {
	sl, l, pt, err := s.PublicAddress(req.Slug, req.Locale, req.PostType)
	if err != nil {
		return nil, err
	}

	// Gate on the cheap head lookup before loading the body.
	if connector.Supports(s.conn, connector.CapPublicHead) {
		h, err := s.readPublicHead(ctx, sl, l, pt)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, notFound(sl)
		}
		if h.HasPassword() && !s.unlocked(req.UnlockToken, h) {
			return s.renderer.Protected(h), nil
		}
	}

	full, err := s.readPublished(ctx, sl, l, pt)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, notFound(sl)
	}
	if full.HasPassword() && !s.unlocked(req.UnlockToken, full) {
		return s.renderer.Protected(full), nil
	}
	return s.renderer.Build(full), nil
}

// UnlockBySlug checks password against a protected item and issues an
// unlock token bound to its current password version.
func (s *Service) UnlockBySlug(ctx context.Context, rawSlug, locale, postType, password string) (*UnlockGrant, error) {
	if s.tokens == nil {
		return nil, ErrUnlockDisabled
	}
	h, err := s.GetPublicHead(ctx, rawSlug, locale, postType)
	if err != nil {
		return nil, err
	}
	if !h.HasPassword() {
		return nil, invalid("password", "", "item is not password protected")
	}
	if !s.hasher.Verify(*h.PasswordHash, password) {
		return nil, &AuthenticationError{Message: "incorrect password"}
	}
	token, expires, err := s.tokens.Issue(h.UID, h.PasswordVersion)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", h.UID, err)
	}
	return &UnlockGrant{UID: h.UID, Token: token, ExpiresAt: expires}, nil
}

func (s *Service) unlocked(token string, h *models.Head) bool {
	if token == "" || s.tokens == nil {
		return false
	}
	return s.tokens.Verify(token, h.UID, h.PasswordVersion) == nil
}

// PublicAddress canonicalizes a public address the way every public read
// does, applying the default locale and post type.
func (s *Service) PublicAddress(rawSlug, locale, postType string) (string, string, string, error) {
	sl := slug.Canonicalize(rawSlug)
	if sl == "" {
		return "", "", "", invalid("slug", rawSlug, "is required")
	}
	l, err := s.rules.normalizeLocale(locale)
	if err != nil {
		return "", "", "", err
	}
	pt, err := s.rules.normalizePostType(postType)
	if err != nil {
		return "", "", "", err
	}
	return sl, l, pt, nil
}

func (s *Service) readPublicHead(ctx context.Context, sl, locale, postType string) (*models.Head, error) {
	r, ok := connector.AsPublicHeadReader(s.conn)
	if !ok {
		return s.readPublished(ctx, sl, locale, postType)
	}
	h, err := r.GetPublicHeadBySlug(ctx, sl, locale, postType)
	if err != nil {
		return nil, fmt.Errorf("get public head %s: %w", sl, err)
	}
	return publishedOnly(h), nil
}

// readPublished loads the full published row, through the published-read
// capability when present and a filtered listing otherwise.
func (s *Service) readPublished(ctx context.Context, sl, locale, postType string) (*models.Head, error) {
	if r, ok := connector.AsPublishedReader(s.conn); ok {
		h, err := r.GetPublishedBySlug(ctx, sl, locale, postType)
		if err != nil {
			return nil, fmt.Errorf("get published %s: %w", sl, err)
		}
		return publishedOnly(h), nil
	}

	res, err := s.conn.List(ctx, models.ListFilter{
		Status:   models.StatusPublished,
		Slug:     sl,
		Locale:   locale,
		PostType: postType,
		Limit:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("get published %s: %w", sl, err)
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	return publishedOnly(res.Items[0]), nil
}

func publishedOnly(h *models.Head) *models.Head {
	if h == nil || !h.IsPublished() {
		return nil
	}
	return h
}
