// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug canonicalizes and validates URL path segments for CMS items.
package slug

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLen is the longest slug accepted, in runes.
const MaxLen = 300

var (
	ErrEmpty     = errors.New("slug is empty")
	ErrMalformed = errors.New("slug is malformed")
	ErrTooLong   = errors.New("slug is too long")
	ErrReserved  = errors.New("slug is reserved")
)

var (
	// separators matches runs of whitespace and separator punctuation.
	separators = regexp.MustCompile(`[\s_./\-]+`)
	// disallowed matches anything that isn't a lowercase letter, digit, or hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
	// valid is the canonical slug shape.
	valid = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Canonicalize turns arbitrary input into a lowercase, hyphen-separated slug.
// Canonicalize(Canonicalize(s)) == Canonicalize(s) for every s.
// Example: "  Hello, World_2026 " → "hello-world-2026"
func Canonicalize(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = separators.ReplaceAllString(result, "-")
	result = disallowed.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// Validate checks that s is a canonical slug and is not in the reserved set.
// Reserved matching is exact and case-sensitive.
func Validate(s string, reserved map[string]struct{}) error {
	if s == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(s) > MaxLen {
		return ErrTooLong
	}
	if !valid.MatchString(s) {
		return ErrMalformed
	}
	if _, ok := reserved[s]; ok {
		return ErrReserved
	}
	return nil
}

// Set builds a reserved-slug set from a list.
func Set(slugs ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return set
}
