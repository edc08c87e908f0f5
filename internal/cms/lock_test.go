// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmskit/internal/connector/memory"
	"cmskit/internal/models"
)

func TestLockLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "locked")

	locked, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)
	require.NotNil(t, locked.LockedBy)
	assert.Equal(t, "alice", *locked.LockedBy)
	assert.Equal(t, h.VersionNumber, locked.VersionNumber, "locking must not bump version")
	assert.Equal(t, h.ETag, locked.ETag)

	again, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err, "re-acquire by the holder")
	assert.True(t, again.LockedAt.After(*locked.LockedAt))

	_, err = f.svc.LockByUID(ctx, h.UID, "bob")
	var le *LockedError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "alice", le.LockedBy)
	assert.Equal(t, *again.LockedAt, le.LockedAt)

	_, err = f.svc.UnlockByUID(ctx, h.UID, "bob", false)
	assert.ErrorIs(t, err, ErrLocked)

	unlocked, err := f.svc.UnlockByUID(ctx, h.UID, "alice", false)
	require.NoError(t, err)
	assert.Nil(t, unlocked.LockedBy)
	assert.Nil(t, unlocked.LockedAt)

	rows, err := f.svc.ListHistory(ctx, h.UID, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "lock operations take no snapshot")
}

func TestLockExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "expiring")

	_, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)

	f.clock.Advance(DefaultLockTTL)
	stolen, err := f.svc.LockByUID(ctx, h.UID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", *stolen.LockedBy)
}

func TestCustomLockTTL(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.LockTTL = time.Hour })
	ctx := context.Background()
	h := f.create(t, "ttl")

	_, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)

	f.clock.Advance(DefaultLockTTL)
	_, err = f.svc.LockByUID(ctx, h.UID, "bob")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestForceUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "force")

	_, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)

	got, err := f.svc.UnlockByUID(ctx, h.UID, "admin", true)
	require.NoError(t, err)
	assert.Nil(t, got.LockedBy)
}

func TestLocksAreAdvisory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "advisory")

	_, err := f.svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)

	got, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("bob edits anyway"), Actor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", *got.LockedBy, "content writes keep the lock")
}

func TestLockRequiresActor(t *testing.T) {
	f := newFixture(t)
	h := f.create(t, "anon")
	_, err := f.svc.LockByUID(context.Background(), h.UID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLockIgnoresConcurrentEdit(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "retry", Slug: "retry"})
	require.NoError(t, err)

	flaky.lockRace = func() { bumpVersion(t, inner, h.UID) }
	got, err := svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", *got.LockedBy)
	assert.Equal(t, int64(2), got.VersionNumber)
	assert.Equal(t, "edited elsewhere", got.Title)
}

func TestEditDoesNotOverwriteRacingLock(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "draft", Slug: "racing-lock"})
	require.NoError(t, err)

	flaky.race = func() {
		_, err := svc.LockByUID(ctx, h.UID, "bob")
		require.NoError(t, err)
	}
	edited, err := svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("alice's edit"), Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice's edit", edited.Title)
	require.NotNil(t, edited.LockedBy)
	assert.Equal(t, "bob", *edited.LockedBy)

	stored, err := inner.GetByUID(ctx, h.UID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedBy)
	assert.Equal(t, "bob", *stored.LockedBy)
	assert.NotNil(t, stored.LockedAt)
}

func TestRacingLocksOnlyOneWins(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "contended", Slug: "contended"})
	require.NoError(t, err)

	flaky.lockRace = func() {
		_, err := svc.LockByUID(ctx, h.UID, "bob")
		require.NoError(t, err)
	}
	_, err = svc.LockByUID(ctx, h.UID, "alice")
	var le *LockedError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "bob", le.LockedBy)

	stored, err := inner.GetByUID(ctx, h.UID)
	require.NoError(t, err)
	assert.Equal(t, "bob", *stored.LockedBy)
}

func TestRacingUnlockKeepsNewHolder(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	clock := newFakeClock()
	svc := New(flaky, Options{Clock: clock.Now})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "handover", Slug: "handover"})
	require.NoError(t, err)
	_, err = svc.LockByUID(ctx, h.UID, "alice")
	require.NoError(t, err)

	clock.Advance(DefaultLockTTL)
	flaky.lockRace = func() {
		_, err := svc.LockByUID(ctx, h.UID, "bob")
		require.NoError(t, err)
	}
	_, err = svc.UnlockByUID(ctx, h.UID, "alice", false)
	assert.ErrorIs(t, err, ErrLocked)

	stored, err := inner.GetByUID(ctx, h.UID)
	require.NoError(t, err)
	assert.Equal(t, "bob", *stored.LockedBy)
}

func TestLockHolder(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	tests := []struct {
		name string
		by   *string
		at   *time.Time
		held bool
	}{
		{"unlocked", nil, nil, false},
		{"self", ptr("me"), &recent, false},
		{"other recent", ptr("other"), &recent, true},
		{"other expired", ptr("other"), &old, false},
		{"other without timestamp", ptr("other"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &models.Head{LockedBy: tt.by, LockedAt: tt.at}
			_, _, held := lockHolder(h, "me", now, DefaultLockTTL)
			assert.Equal(t, tt.held, held)
		})
	}
}
