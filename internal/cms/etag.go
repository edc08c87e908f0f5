// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeETag derives the concurrency token for a head row. It depends only
// on uid and version, so it changes on every successful write.
func ComputeETag(uid string, version int64) string {
	sum := sha256.Sum256([]byte(uid + ":" + strconv.FormatInt(version, 10)))
	return hex.EncodeToString(sum[:16])
}

// AssertIfMatch compares a caller-supplied If-Match value against the
// current etag. The value may be a comma-separated list; any matching
// member passes. An empty value or "*" skips the check.
func AssertIfMatch(ifMatch, currentETag string) error {
	present := false
	for _, member := range strings.Split(ifMatch, ",") {
		token := normalizeETag(member)
		if token == "" {
			continue
		}
		if token == "*" || token == currentETag {
			return nil
		}
		present = true
	}
	if !present {
		return nil
	}
	return &ConflictError{Reason: ReasonETagMismatch, CurrentETag: currentETag}
}

// normalizeETag strips the weak prefix and surrounding quotes so both raw
// and HTTP-quoted tokens compare equal.
func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
