// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"cmskit/internal/models"
	"cmskit/internal/slug"
)

// Validation limits for head fields.
const (
	maxTitleLen   = 300
	maxContentLen = 500_000
	maxTags       = 50
	maxTagLen     = 64
	maxRoleLen    = 32
)

var (
	localePattern = regexp.MustCompile(`^[a-z]{2,3}(?:-[a-z0-9]{2,8})*$`)
	uidPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)
)

// Policy is the site-specific allow-list configuration.
type Policy struct {
	ReservedSlugs []string `yaml:"reserved_slugs"`
	Locales       []string `yaml:"locales"`
	DefaultLocale string   `yaml:"default_locale"`
	PostTypes     []string `yaml:"post_types"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		ReservedSlugs: []string{"admin", "api", "assets", "health", "login", "logout"},
		Locales:       []string{"en"},
		DefaultLocale: "en",
		PostTypes:     []string{"page", "post"},
	}
}

// rules is the compiled form of a Policy.
type rules struct {
	reserved        map[string]struct{}
	locales         map[string]struct{}
	defaultLocale   string
	postTypes       map[string]struct{}
	defaultPostType string
}

func compilePolicy(p Policy) rules {
	def := DefaultPolicy()
	if len(p.PostTypes) == 0 {
		p.PostTypes = def.PostTypes
	}
	if p.DefaultLocale == "" {
		p.DefaultLocale = def.DefaultLocale
	}

	r := rules{
		reserved:        slug.Set(p.ReservedSlugs...),
		locales:         make(map[string]struct{}, len(p.Locales)),
		defaultLocale:   NormalizeLocale(p.DefaultLocale, ""),
		postTypes:       make(map[string]struct{}, len(p.PostTypes)),
		defaultPostType: p.PostTypes[0],
	}
	for _, l := range p.Locales {
		r.locales[NormalizeLocale(l, "")] = struct{}{}
	}
	for _, pt := range p.PostTypes {
		r.postTypes[pt] = struct{}{}
	}
	return r
}

// NormalizeLocale lowercases a language tag and uses hyphens as separators.
// An empty input yields fallback.
func NormalizeLocale(raw, fallback string) string {
	l := strings.ToLower(strings.TrimSpace(raw))
	l = strings.ReplaceAll(l, "_", "-")
	if l == "" {
		return fallback
	}
	return l
}

// AssertValidSlug wraps slug.Validate into a ValidationError.
func AssertValidSlug(s string, reserved map[string]struct{}) error {
	err := slug.Validate(s, reserved)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, slug.ErrEmpty):
		return invalid("slug", s, "is required")
	case errors.Is(err, slug.ErrReserved):
		return invalid("slug", s, "is reserved")
	case errors.Is(err, slug.ErrTooLong):
		return invalid("slug", "", "is too long (max 300 characters)")
	default:
		return invalid("slug", s, "must be lowercase letters, digits and single hyphens")
	}
}

// AssertAllowedContentType checks ct against the fixed content type enum.
func AssertAllowedContentType(ct models.ContentType) error {
	if !slices.Contains(models.ContentTypes, ct) {
		return invalid("content_type", string(ct), "is not supported")
	}
	return nil
}

func (r rules) assertPostType(pt string) error {
	if _, ok := r.postTypes[pt]; !ok {
		return invalid("post_type", pt, "is not allowed")
	}
	return nil
}

func (r rules) assertLocale(l string) error {
	if !localePattern.MatchString(l) {
		return invalid("locale", l, "is not a valid language tag")
	}
	if len(r.locales) == 0 {
		return nil
	}
	if _, ok := r.locales[l]; !ok {
		return invalid("locale", l, "is not allowed")
	}
	return nil
}

// normalizeSlug canonicalizes raw and validates the result.
func (r rules) normalizeSlug(raw string) (string, error) {
	s := slug.Canonicalize(raw)
	if err := AssertValidSlug(s, r.reserved); err != nil {
		if s == "" && strings.TrimSpace(raw) != "" {
			return "", invalid("slug", raw, "has no usable characters")
		}
		return "", err
	}
	return s, nil
}

func (r rules) normalizeLocale(raw string) (string, error) {
	l := NormalizeLocale(raw, r.defaultLocale)
	if err := r.assertLocale(l); err != nil {
		return "", err
	}
	return l, nil
}

func (r rules) normalizePostType(raw string) (string, error) {
	pt := strings.TrimSpace(raw)
	if pt == "" {
		pt = r.defaultPostType
	}
	if err := r.assertPostType(pt); err != nil {
		return "", err
	}
	return pt, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "", "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", invalid("title", "", "is too long (max 300 characters)")
	}
	return title, nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > maxContentLen {
		return invalid("content", "", "is too long (max 500,000 characters)")
	}
	return nil
}

// normalizeTags trims, drops empties and removes duplicates while keeping
// the first occurrence's position.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, invalid("tags", t, "tag is too long (max 64 characters)")
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, invalid("tags", "", "too many tags (max 50)")
	}
	return out, nil
}

// normalizeOptions requires a JSON object; empty input becomes {}.
func normalizeOptions(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, invalid("options", "", "must be a JSON object")
	}
	return json.RawMessage(slices.Clone(trimmed)), nil
}

func validateUID(uid string) error {
	if !uidPattern.MatchString(uid) {
		return invalid("uid", uid, "must be 8-64 URL-safe characters")
	}
	return nil
}
