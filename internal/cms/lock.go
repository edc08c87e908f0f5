// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"time"

	"cmskit/internal/models"
)

// DefaultLockTTL is how long an advisory lock blocks other actors.
const DefaultLockTTL = 10 * time.Minute

// lockHolder returns the holder of a live lock on h other than actor. It
// reports false when actor may take the lock.
func lockHolder(h *models.Head, actor string, now time.Time, ttl time.Duration) (string, time.Time, bool) {
	if h.LockedBy == nil || *h.LockedBy == "" || *h.LockedBy == actor {
		return "", time.Time{}, false
	}
	if h.LockedAt == nil || now.Sub(*h.LockedAt) >= ttl {
		return "", time.Time{}, false
	}
	return *h.LockedBy, *h.LockedAt, true
}

// canRelease reports whether actor may clear the lock on h.
func canRelease(h *models.Head, actor string, force bool) bool {
	return force || h.LockedBy == nil || *h.LockedBy == actor
}

// lockedBy reports the lock recorded on h.
func lockedBy(h *models.Head) *LockedError {
	e := &LockedError{}
	if h.LockedBy != nil {
		e.LockedBy = *h.LockedBy
	}
	if h.LockedAt != nil {
		e.LockedAt = *h.LockedAt
	}
	return e
}
