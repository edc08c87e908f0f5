// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package render builds the public, read-optimized view of a content item.
// The body is dispatched on the item's content type through a closed set of
// variants; exactly one body field of the resulting Payload is populated.
package render

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"cmskit/internal/markdown"
	"cmskit/internal/models"
)

// Payload is what public readers receive for a published item.
type Payload struct {
	UID         string             `json:"uid"`
	Title       string             `json:"title"`
	Slug        string             `json:"slug"`
	Locale      string             `json:"locale"`
	PostType    string             `json:"post_type"`
	ContentType models.ContentType `json:"content_type"`
	Options     json.RawMessage    `json:"options,omitempty"`
	Tags        []string           `json:"tags"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ETag        string             `json:"etag"`

	SanitizedHTML *string          `json:"sanitized_html,omitempty"`
	MarkdownHTML  *string          `json:"markdown_html,omitempty"`
	JSON          *json.RawMessage `json:"json,omitempty"`
	Text          *string          `json:"text,omitempty"`

	Protected bool `json:"protected"`
}

// Renderer turns head rows into payloads.
type Renderer struct {
	policy *bluemonday.Policy
	logger *slog.Logger
}

var highlightClass = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// New returns a Renderer using the user-generated-content HTML policy,
// extended to keep syntax-highlighting classes. A nil logger discards.
func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(highlightClass).OnElements("pre", "code", "span")
	return &Renderer{policy: p, logger: logger}
}

// Build renders the full public payload of h.
func (r *Renderer) Build(h *models.Head) *Payload {
	p := meta(h)
	bodyFor(h).render(r, p)
	return p
}

// Protected renders metadata only, for password-protected items whose
// reader has not unlocked them.
func (r *Renderer) Protected(h *models.Head) *Payload {
	p := meta(h)
	p.Protected = true
	return p
}

func meta(h *models.Head) *Payload {
	tags := slices.Clone(h.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &Payload{
		UID:         h.UID,
		Title:       h.Title,
		Slug:        h.Slug,
		Locale:      h.Locale,
		PostType:    h.PostType,
		ContentType: h.ContentType,
		Options:     slices.Clone(h.Options),
		Tags:        tags,
		PublishedAt: h.PublishedAt,
		UpdatedAt:   h.UpdatedAt,
		ETag:        h.ETag,
	}
}

// body is one of htmlBody, markdownBody, jsonBody or textBody.
type body interface {
	render(r *Renderer, p *Payload)
}

type (
	htmlBody     struct{ source string }
	markdownBody struct{ source string }
	jsonBody     struct{ source string }
	textBody     struct{ source string }
)

// bodyFor picks the variant for h's content type. Unknown types are
// treated as plain text.
func bodyFor(h *models.Head) body {
	switch h.ContentType {
	case models.ContentTypeHTML:
		return htmlBody{h.Content}
	case models.ContentTypeMarkdown:
		return markdownBody{h.Content}
	case models.ContentTypeJSON:
		return jsonBody{h.Content}
	default:
		return textBody{h.Content}
	}
}

func (b htmlBody) render(r *Renderer, p *Payload) {
	out := r.policy.Sanitize(b.source)
	p.SanitizedHTML = &out
}

func (b markdownBody) render(r *Renderer, p *Payload) {
	html, err := markdown.ToHTML(b.source)
	if err != nil {
		r.logger.Warn("markdown render failed", "uid", p.UID, "error", err)
		html = ""
	}
	out := r.policy.Sanitize(html)
	p.MarkdownHTML = &out
}

func (b jsonBody) render(_ *Renderer, p *Payload) {
	raw := json.RawMessage("null")
	if json.Valid([]byte(b.source)) {
		raw = json.RawMessage(b.source)
	}
	p.JSON = &raw
}

func (b textBody) render(_ *Renderer, p *Payload) {
	out := b.source
	p.Text = &out
}
