// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmskit/internal/connector/memory"
	"cmskit/internal/models"
)

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.Create(ctx, CreateInput{Title: "  Hello World  ", Actor: "author"})
	require.NoError(t, err)

	assert.NotEmpty(t, h.UID)
	assert.Equal(t, "Hello World", h.Title)
	assert.Equal(t, "hello-world", h.Slug)
	assert.Equal(t, "en", h.Locale)
	assert.Equal(t, "page", h.PostType)
	assert.Equal(t, models.ContentTypePlain, h.ContentType)
	assert.Equal(t, models.StatusDraft, h.Status)
	assert.Equal(t, int64(1), h.VersionNumber)
	assert.Equal(t, ComputeETag(h.UID, 1), h.ETag)
	assert.JSONEq(t, `{}`, string(h.Options))
	assert.Equal(t, 0, h.PasswordVersion)
	require.NotNil(t, h.CreatedBy)
	assert.Equal(t, "author", *h.CreatedBy)

	rows, err := f.conn.ListHistory(ctx, h.UID, models.HistoryFilter{IncludeSoftDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, rows, "create must not snapshot")
}

func TestCreateNormalizes(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Policy = &Policy{Locales: []string{"en", "pt-br"}, DefaultLocale: "en", PostTypes: []string{"page", "post"}}
	})

	h, err := f.svc.Create(context.Background(), CreateInput{
		UID:      "custom_uid-01",
		Title:    "Olá",
		Slug:     "  Ola / Mundo__2026 ",
		Locale:   "PT_BR",
		PostType: "post",
		Options:  json.RawMessage(`{"seo":{"title":"x"}}`),
		Tags:     []string{" a ", "b", "a", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom_uid-01", h.UID)
	assert.Equal(t, "ola-mundo-2026", h.Slug)
	assert.Equal(t, "pt-br", h.Locale)
	assert.Equal(t, []string{"a", "b"}, h.Tags)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "taken")

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing title", CreateInput{Title: "  "}, "title"},
		{"reserved slug", CreateInput{Title: "x", Slug: "admin"}, "slug"},
		{"unusable slug", CreateInput{Title: "x", Slug: "!!!"}, "slug"},
		{"duplicate slug", CreateInput{Title: "x", Slug: "taken"}, "slug"},
		{"bad content type", CreateInput{Title: "x", ContentType: "image/png"}, "content_type"},
		{"bad post type", CreateInput{Title: "x", PostType: "product"}, "post_type"},
		{"locale not allowed", CreateInput{Title: "x", Locale: "fr"}, "locale"},
		{"options not object", CreateInput{Title: "x", Options: json.RawMessage(`[1]`)}, "options"},
		{"bad uid", CreateInput{Title: "x", UID: "short"}, "uid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestGetByUIDNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetByUID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListClampsAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		f.create(t, s)
	}
	h := f.create(t, "d")
	_, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, models.ListFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)

	trash, err := f.svc.List(ctx, models.ListFilter{Status: models.StatusTrash})
	require.NoError(t, err)
	require.Len(t, trash.Items, 1)
	assert.Equal(t, h.UID, trash.Items[0].UID)

	_, err = f.svc.List(ctx, models.ListFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMonotonicVersioning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "mono")

	steps := []func() (*models.Head, error){
		func() (*models.Head, error) {
			return f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("v2")})
		},
		func() (*models.Head, error) { return f.svc.PublishByUID(ctx, h.UID, PublishInput{}) },
		func() (*models.Head, error) { return f.svc.TrashByUID(ctx, h.UID, TrashInput{}) },
		func() (*models.Head, error) { return f.svc.RestoreByUID(ctx, h.UID, RestoreInput{}) },
		func() (*models.Head, error) {
			return f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Content: ptr("new")})
		},
	}

	prev := h
	for i, step := range steps {
		got, err := step()
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, prev.VersionNumber+1, got.VersionNumber, "step %d", i)
		assert.NotEqual(t, prev.ETag, got.ETag, "step %d", i)
		assert.Equal(t, ComputeETag(got.UID, got.VersionNumber), got.ETag, "step %d", i)
		prev = got
	}
}

func TestConcurrencyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "guard")

	_, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: "stale", Title: ptr("nope")})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonETagMismatch, ce.Reason)
	assert.Equal(t, h.ETag, ce.CurrentETag)

	stored, err := f.svc.GetByUID(ctx, h.UID)
	require.NoError(t, err)
	assert.Equal(t, h.Title, stored.Title, "stale write must not mutate")
	assert.Equal(t, h.VersionNumber, stored.VersionNumber)

	v2, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: h.ETag, Title: ptr("matched")})
	require.NoError(t, err)

	v3, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: `W/"` + v2.ETag + `"`, Title: ptr("quoted")})
	require.NoError(t, err)

	v4, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: "*", Title: ptr("wildcard")})
	require.NoError(t, err)
	assert.Equal(t, v3.VersionNumber+1, v4.VersionNumber)

	_, err = f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("no token")})
	require.NoError(t, err)
}

func TestConcurrentWriteDetected(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{Clock: newFakeClock().Now})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "race", Slug: "race"})
	require.NoError(t, err)

	flaky.race = func() { bumpVersion(t, inner, h.UID) }
	_, err = svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: h.ETag, Title: ptr("loser")})

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonConcurrentWrite, ce.Reason)
	assert.Equal(t, ComputeETag(h.UID, 2), ce.CurrentETag)

	stored, _ := inner.GetByUID(ctx, h.UID)
	assert.Equal(t, "edited elsewhere", stored.Title)
}

func TestUpdateRacingDeleteIsNotFound(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{})
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{Title: "gone", Slug: "gone"})
	require.NoError(t, err)

	flaky.race = func() { inner.DeleteByUID(ctx, h.UID) }
	_, err = svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("late")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrashBeforeDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "precondition")

	err := f.svc.DeleteByUID(ctx, h.UID, DeleteInput{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)

	_, err = f.svc.GetByUID(ctx, h.UID)
	require.NoError(t, err, "item must survive a rejected delete")

	_, err = f.svc.TrashByUID(ctx, h.UID, TrashInput{})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteByUID(ctx, h.UID, DeleteInput{}))

	_, err = f.svc.GetByUID(ctx, h.UID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteByUID(ctx, h.UID, DeleteInput{}), ErrNotFound)
}

func TestDeleteKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "keep")

	_, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteByUID(ctx, h.UID, DeleteInput{}))

	rows, err := f.svc.ListHistory(ctx, h.UID, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFirstPublishIsSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "sticky")

	first, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{})
	require.NoError(t, err)
	require.NotNil(t, first.PublishedAt)
	require.NotNil(t, first.FirstPublishedAt)
	assert.Equal(t, *first.PublishedAt, *first.FirstPublishedAt)

	second, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{})
	require.NoError(t, err)
	assert.True(t, second.PublishedAt.After(*first.PublishedAt))
	assert.Equal(t, *first.FirstPublishedAt, *second.FirstPublishedAt)

	override := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	third, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{PublishedAt: &override})
	require.NoError(t, err)
	assert.Equal(t, override, *third.PublishedAt)
	assert.Equal(t, *first.FirstPublishedAt, *third.FirstPublishedAt)
}

func TestRestoreLandsInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "restore")

	_, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{})
	require.NoError(t, err)
	trashed, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{Actor: "editor"})
	require.NoError(t, err)
	assert.NotNil(t, trashed.PublishedAt, "trash keeps published_at")
	require.NotNil(t, trashed.TrashedBy)
	assert.Equal(t, "editor", *trashed.TrashedBy)

	restored, err := f.svc.RestoreByUID(ctx, h.UID, RestoreInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, restored.Status)
	assert.Nil(t, restored.TrashedAt)
	assert.Nil(t, restored.TrashedBy)

	_, err = f.svc.RestoreByUID(ctx, h.UID, RestoreInput{})
	assert.ErrorIs(t, err, ErrValidation, "restore requires trash")
}

func TestPublishFromTrashClearsTrashMarkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "back")

	_, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{Actor: "x"})
	require.NoError(t, err)
	p, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, p.Status)
	assert.Nil(t, p.TrashedAt)
}

func TestSlugChangeGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "old-url")

	// Drafts change slug freely.
	d, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Slug: ptr("draft-url")})
	require.NoError(t, err)
	assert.Equal(t, "draft-url", d.Slug)

	p, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{})
	require.NoError(t, err)

	_, err = f.svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: p.ETag, Slug: ptr("new-url")})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonSlugChangeUnconfirmed, ce.Reason)

	// Same slug is not a change.
	_, err = f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Slug: ptr("Draft URL"), Title: ptr("t")})
	require.NoError(t, err)

	ok, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Slug: ptr("new-url"), ConfirmSlugChange: true})
	require.NoError(t, err)
	assert.Equal(t, "new-url", ok.Slug)
}

func TestUpdateDuplicateSlug(t *testing.T) {
	f := newFixture(t)
	f.create(t, "first")
	h := f.create(t, "second")

	_, err := f.svc.UpdateByUID(context.Background(), h.UID, UpdateInput{Slug: ptr("first")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "slug", ve.Field)
}

func TestHistorySnapshotOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.create(t, "ordering")

	_, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("Second title"), Content: ptr("v2 body")})
	require.NoError(t, err)

	rows, err := f.svc.ListHistory(ctx, h.UID, models.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Revision)
	assert.Equal(t, h.Title, rows[0].Snapshot.Title)
	assert.Equal(t, "<p>hi</p>", rows[0].Snapshot.Content)
}

func TestBestEffortIsolation(t *testing.T) {
	tests := []struct {
		name  string
		flaky flakyConnector
		hook  Hook
	}{
		{"history insert fails", flakyConnector{historyErr: errors.New("db down")}, nil},
		{"history insert panics", flakyConnector{historyPanic: true}, nil},
		{"hook fails", flakyConnector{}, func(context.Context, Event) error { return errors.New("webhook 500") }},
		{"hook panics", flakyConnector{}, func(context.Context, Event) error { panic("hook bug") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			flaky := tt.flaky
			flaky.Connector = memory.New()
			svc := New(&flaky, Options{OnAfterWrite: tt.hook})

			h, err := svc.Create(ctx, CreateInput{Title: "iso", Slug: "iso"})
			require.NoError(t, err)

			got, err := svc.UpdateByUID(ctx, h.UID, UpdateInput{IfMatch: h.ETag, Title: ptr("after")})
			require.NoError(t, err)
			assert.Equal(t, "after", got.Title)
			assert.Equal(t, int64(2), got.VersionNumber)
			assert.NotEqual(t, h.ETag, got.ETag)
		})
	}
}

func TestHookReceivesEvents(t *testing.T) {
	var events []Event
	f := newFixture(t, func(o *Options) {
		o.OnAfterWrite = func(_ context.Context, ev Event) error {
			events = append(events, ev)
			return nil
		}
	})
	ctx := context.Background()
	h := f.create(t, "events")

	_, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{Actor: "pub"})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventCreate, events[0].Type)
	assert.Nil(t, events[0].Previous)
	assert.Equal(t, EventPublish, events[1].Type)
	assert.Equal(t, "pub", events[1].ActorUserUID)
	assert.Equal(t, models.StatusDraft, events[1].Previous.Status)
	assert.Equal(t, models.StatusPublished, events[1].Row.Status)
}

func TestEmptyTrash(t *testing.T) {
	inner := memory.New()
	flaky := &flakyConnector{Connector: inner}
	svc := New(flaky, Options{Clock: newFakeClock().Now})
	ctx := context.Background()

	var uids []string
	for _, s := range []string{"t1", "t2", "t3"} {
		h, err := svc.Create(ctx, CreateInput{Title: s, Slug: s})
		require.NoError(t, err)
		_, err = svc.TrashByUID(ctx, h.UID, TrashInput{})
		require.NoError(t, err)
		uids = append(uids, h.UID)
	}
	draft, err := svc.Create(ctx, CreateInput{Title: "keep", Slug: "keep"})
	require.NoError(t, err)

	flaky.deleteFail = map[string]bool{uids[1]: true}

	n, err := svc.EmptyTrash(ctx, 0, "janitor")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.GetByUID(ctx, uids[1])
	assert.NoError(t, err, "failed deletion leaves the item")
	_, err = svc.GetByUID(ctx, draft.UID)
	assert.NoError(t, err, "drafts are untouched")
}

func TestEmptyTrashHonorsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		h := f.create(t, s)
		_, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{})
		require.NoError(t, err)
	}

	n, err := f.svc.EmptyTrash(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := f.svc.List(ctx, models.ListFilter{Status: models.StatusTrash})
	require.NoError(t, err)
	assert.Equal(t, 1, left.Total)
}

func TestPasswordVersioning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.Create(ctx, CreateInput{Title: "secret", Password: "pw1"})
	require.NoError(t, err)
	assert.True(t, h.HasPassword())
	assert.Equal(t, 1, h.PasswordVersion)

	changed, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Password: ptr("pw2")})
	require.NoError(t, err)
	assert.Equal(t, 2, changed.PasswordVersion)
	assert.NotEqual(t, *h.PasswordHash, *changed.PasswordHash)

	untouched, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Title: ptr("still secret")})
	require.NoError(t, err)
	assert.Equal(t, 2, untouched.PasswordVersion)

	cleared, err := f.svc.UpdateByUID(ctx, h.UID, UpdateInput{Password: ptr("")})
	require.NoError(t, err)
	assert.False(t, cleared.HasPassword())
	assert.Equal(t, 3, cleared.PasswordVersion)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.Create(ctx, CreateInput{
		Title:       "Hello",
		Slug:        "hello",
		Content:     "<p>hi</p>",
		ContentType: models.ContentTypeHTML,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.VersionNumber)
	assert.Equal(t, models.StatusDraft, h.Status)

	pub, err := f.svc.PublishByUID(ctx, h.UID, PublishInput{IfMatch: h.ETag})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, pub.Status)
	assert.NotNil(t, pub.PublishedAt)
	assert.Equal(t, int64(2), pub.VersionNumber)

	trashed, err := f.svc.TrashByUID(ctx, h.UID, TrashInput{IfMatch: pub.ETag})
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrash, trashed.Status)
	assert.Equal(t, int64(3), trashed.VersionNumber)

	fresh := f.create(t, "fresh")
	err = f.svc.DeleteByUID(ctx, fresh.UID, DeleteInput{})
	assert.ErrorIs(t, err, ErrValidation)

	restored, err := f.svc.RestoreByUID(ctx, h.UID, RestoreInput{IfMatch: trashed.ETag})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, restored.Status)
	assert.Equal(t, int64(4), restored.VersionNumber)
}
