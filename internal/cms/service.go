// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package cms coordinates the lifecycle of content items: optimistic
// concurrency through etags, best-effort history snapshots, advisory locks,
// the draft/published/trash state machine and the public read path. All
// durable state lives behind a connector.Connector.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cmskit/internal/connector"
	"cmskit/internal/models"
	"cmskit/internal/password"
	"cmskit/internal/render"
)

// Pagination bounds.
const (
	defaultListLimit  = 50
	maxListLimit      = 200
	defaultTrashLimit = 100
	maxTrashLimit     = 500
)

// PasswordHasher hashes and checks item access passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// TokenIssuer issues unlock tokens bound to an item's password version.
type TokenIssuer interface {
	Issue(uid string, passwordVersion int) (string, time.Time, error)
	Verify(token, uid string, passwordVersion int) error
}

// Options configures a Service. Every field is optional.
type Options struct {
	Logger       *slog.Logger
	OnAfterWrite Hook
	Clock        func() time.Time
	LockTTL      time.Duration
	Policy       *Policy
	Hasher       PasswordHasher
	// Tokens enables UnlockBySlug and unlock-token reads of protected items.
	Tokens   TokenIssuer
	Renderer *render.Renderer
}

// Service is the revision orchestrator. It holds no per-item state; all
// serialization of concurrent edits goes through etags and the connector's
// conditional update.
type Service struct {
	conn         connector.Connector
	logger       *slog.Logger
	onAfterWrite Hook
	clock        func() time.Time
	lockTTL      time.Duration
	rules        rules
	hasher       PasswordHasher
	tokens       TokenIssuer
	renderer     *render.Renderer
}

// New returns a Service over conn.
func New(conn connector.Connector, opts Options) *Service {
	s := &Service{
		conn:         conn,
		logger:       opts.Logger,
		onAfterWrite: opts.OnAfterWrite,
		clock:        opts.Clock,
		lockTTL:      opts.LockTTL,
		hasher:       opts.Hasher,
		tokens:       opts.Tokens,
		renderer:     opts.Renderer,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	if s.hasher == nil {
		s.hasher = password.Bcrypt{}
	}
	if s.renderer == nil {
		s.renderer = render.New(s.logger)
	}
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	s.rules = compilePolicy(policy)
	return s
}

// now is truncated to microseconds so rows compare equal after a round trip
// through PostgreSQL.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// CreateInput holds the fields of a new item. Empty optional fields take
// policy defaults: locale and post type from the policy, content type
// text/plain and a slug derived from the title.
type CreateInput struct {
	UID         string
	Title       string
	Content     string
	ContentType models.ContentType
	Slug        string
	Locale      string
	PostType    string
	Options     json.RawMessage
	Tags        []string
	Password    string
	Actor       string
}

// Create stores a new draft at version 1.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Head, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	ct := in.ContentType
	if ct == "" {
		ct = models.ContentTypePlain
	}
	if err := AssertAllowedContentType(ct); err != nil {
		return nil, err
	}
	locale, err := s.rules.normalizeLocale(in.Locale)
	if err != nil {
		return nil, err
	}
	postType, err := s.rules.normalizePostType(in.PostType)
	if err != nil {
		return nil, err
	}
	rawSlug := in.Slug
	if strings.TrimSpace(rawSlug) == "" {
		rawSlug = title
	}
	slug, err := s.rules.normalizeSlug(rawSlug)
	if err != nil {
		return nil, err
	}
	options, err := normalizeOptions(in.Options)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	uid := in.UID
	if uid == "" {
		uid = uuid.NewString()
	} else if err := validateUID(uid); err != nil {
		return nil, err
	}

	now := s.now()
	head := &models.Head{
		UID:           uid,
		Title:         title,
		Content:       in.Content,
		ContentType:   ct,
		Slug:          slug,
		Locale:        locale,
		PostType:      postType,
		Status:        models.StatusDraft,
		Options:       options,
		Tags:          tags,
		VersionNumber: 1,
		ETag:          ComputeETag(uid, 1),
		CreatedBy:     optional(in.Actor),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("create item: %w", err)
		}
		head.PasswordHash = &hash
		head.PasswordVersion = 1
	}

	created, err := s.conn.Insert(ctx, head)
	if errors.Is(err, connector.ErrDuplicateSlug) {
		return nil, invalid("slug", slug, "is already in use")
	}
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.notify(ctx, Event{Type: EventCreate, UID: uid, Row: created.Clone(), ActorUserUID: in.Actor})
	return created, nil
}

// GetByUID returns the head row for uid.
func (s *Service) GetByUID(ctx context.Context, uid string) (*models.Head, error) {
	h, err := s.conn.GetByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", uid, err)
	}
	if h == nil {
		return nil, notFound(uid)
	}
	return h, nil
}

// List returns a page of head rows. Limit defaults to 50 and is capped at 200.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (*models.ListResult, error) {
	switch filter.Status {
	case "", models.StatusDraft, models.StatusPublished, models.StatusTrash:
	default:
		return nil, invalid("status", string(filter.Status), "is not a known status")
	}
	filter.Limit = clamp(filter.Limit, defaultListLimit, maxListLimit)
	filter.Offset = max(filter.Offset, 0)
	filter.Locale = NormalizeLocale(filter.Locale, "")

	res, err := s.conn.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return res, nil
}

// mutation describes one conditional write of a head row.
type mutation struct {
	op      EventType
	ifMatch string
	actor   string
	// snapshot records the pre-mutation row in history.
	snapshot bool
	// apply edits next, a copy of current. Returning an error aborts the
	// write before anything is persisted.
	apply func(current, next *models.Head, now time.Time) error
}

// mutate runs the load, guard, snapshot, persist and notify sequence shared
// by every write except create and delete.
func (s *Service) mutate(ctx context.Context, uid string, m mutation) (*models.Head, error) {
	current, err := s.conn.GetByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.op, uid, err)
	}
	if current == nil {
		return nil, notFound(uid)
	}
	if err := AssertIfMatch(m.ifMatch, current.ETag); err != nil {
		return nil, err
	}

	now := s.now()
	next := current.Clone()
	if err := m.apply(current, next, now); err != nil {
		return nil, err
	}

	if m.snapshot {
		s.recordHistory(ctx, s.conn, m.op, current, m.actor)
	}
	next.VersionNumber = current.VersionNumber + 1
	next.ETag = ComputeETag(uid, next.VersionNumber)
	next.UpdatedAt = now

	saved, err := s.conn.UpdateByUID(ctx, uid, current.VersionNumber, next)
	switch {
	case errors.Is(err, connector.ErrVersionMismatch):
		return nil, &ConflictError{Reason: ReasonConcurrentWrite, CurrentETag: s.currentETag(ctx, uid)}
	case errors.Is(err, connector.ErrDuplicateSlug):
		return nil, invalid("slug", next.Slug, "is already in use")
	case err != nil:
		return nil, fmt.Errorf("%s %s: %w", m.op, uid, err)
	case saved == nil:
		return nil, notFound(uid)
	}

	s.notify(ctx, Event{Type: m.op, UID: uid, Row: saved.Clone(), Previous: current, ActorUserUID: m.actor})
	return saved, nil
}

// currentETag reloads uid for a conflict response. Errors yield "".
func (s *Service) currentETag(ctx context.Context, uid string) string {
	h, err := s.conn.GetByUID(ctx, uid)
	if err != nil || h == nil {
		return ""
	}
	return h.ETag
}

// UpdateInput patches a subset of fields. Nil pointers and nil slices leave
// the field untouched. Password "" clears the password.
type UpdateInput struct {
	IfMatch           string
	Title             *string
	Content           *string
	ContentType       *models.ContentType
	Slug              *string
	Locale            *string
	PostType          *string
	Options           json.RawMessage
	Tags              []string
	Password          *string
	ConfirmSlugChange bool
	Actor             string
}

// UpdateByUID applies in to the item. Changing the slug of a published item
// requires ConfirmSlugChange.
func (s *Service) UpdateByUID(ctx context.Context, uid string, in UpdateInput) (*models.Head, error) {
	var (
		title, slug, locale, postType *string
		options                       json.RawMessage
		tags                          []string
	)
	if in.Title != nil {
		t, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		title = &t
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
	}
	if in.ContentType != nil {
		if err := AssertAllowedContentType(*in.ContentType); err != nil {
			return nil, err
		}
	}
	if in.Slug != nil {
		v, err := s.rules.normalizeSlug(*in.Slug)
		if err != nil {
			return nil, err
		}
		slug = &v
	}
	if in.Locale != nil {
		v, err := s.rules.normalizeLocale(*in.Locale)
		if err != nil {
			return nil, err
		}
		locale = &v
	}
	if in.PostType != nil {
		v, err := s.rules.normalizePostType(*in.PostType)
		if err != nil {
			return nil, err
		}
		postType = &v
	}
	if in.Options != nil {
		v, err := normalizeOptions(in.Options)
		if err != nil {
			return nil, err
		}
		options = v
	}
	if in.Tags != nil {
		v, err := normalizeTags(in.Tags)
		if err != nil {
			return nil, err
		}
		tags = v
	}

	return s.mutate(ctx, uid, mutation{
		op:       EventUpdate,
		ifMatch:  in.IfMatch,
		actor:    in.Actor,
		snapshot: true,
		apply: func(current, next *models.Head, _ time.Time) error {
			if slug != nil && *slug != current.Slug {
				if current.IsPublished() && !in.ConfirmSlugChange {
					return &ConflictError{Reason: ReasonSlugChangeUnconfirmed, CurrentETag: current.ETag}
				}
				next.Slug = *slug
			}
			if title != nil {
				next.Title = *title
			}
			if in.Content != nil {
				next.Content = *in.Content
			}
			if in.ContentType != nil {
				next.ContentType = *in.ContentType
			}
			if locale != nil {
				next.Locale = *locale
			}
			if postType != nil {
				next.PostType = *postType
			}
			if options != nil {
				next.Options = options
			}
			if tags != nil {
				next.Tags = tags
			}
			if in.Password != nil {
				if err := s.applyPassword(next, *in.Password); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// applyPassword sets or clears the password and bumps its version. Clearing
// an unprotected item is a no-op.
func (s *Service) applyPassword(next *models.Head, plain string) error {
	if plain == "" {
		if next.PasswordHash == nil {
			return nil
		}
		next.PasswordHash = nil
		next.PasswordVersion++
		return nil
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	next.PasswordHash = &hash
	next.PasswordVersion++
	return nil
}

// PublishInput configures PublishByUID. PublishedAt overrides "now".
type PublishInput struct {
	IfMatch     string
	PublishedAt *time.Time
	Actor       string
}

// PublishByUID moves the item to published. first_published_at is only set
// on the first publish.
func (s *Service) PublishByUID(ctx context.Context, uid string, in PublishInput) (*models.Head, error) {
	return s.mutate(ctx, uid, mutation{
		op:       EventPublish,
		ifMatch:  in.IfMatch,
		actor:    in.Actor,
		snapshot: true,
		apply: func(current, next *models.Head, now time.Time) error {
			at := now
			if in.PublishedAt != nil {
				at = in.PublishedAt.UTC().Truncate(time.Microsecond)
			}
			next.Status = models.StatusPublished
			next.PublishedAt = &at
			if current.FirstPublishedAt == nil {
				first := at
				next.FirstPublishedAt = &first
			}
			next.TrashedAt = nil
			next.TrashedBy = nil
			return nil
		},
	})
}

// TrashInput configures TrashByUID.
type TrashInput struct {
	IfMatch string
	Actor   string
}

// TrashByUID moves the item to trash. published_at is kept.
func (s *Service) TrashByUID(ctx context.Context, uid string, in TrashInput) (*models.Head, error) {
	return s.mutate(ctx, uid, mutation{
		op:       EventTrash,
		ifMatch:  in.IfMatch,
		actor:    in.Actor,
		snapshot: true,
		apply: func(_, next *models.Head, now time.Time) error {
			next.Status = models.StatusTrash
			next.TrashedAt = &now
			next.TrashedBy = optional(in.Actor)
			return nil
		},
	})
}

// RestoreInput configures RestoreByUID.
type RestoreInput struct {
	IfMatch string
	Actor   string
}

// RestoreByUID brings a trashed item back as a draft.
func (s *Service) RestoreByUID(ctx context.Context, uid string, in RestoreInput) (*models.Head, error) {
	return s.mutate(ctx, uid, mutation{
		op:       EventRestore,
		ifMatch:  in.IfMatch,
		actor:    in.Actor,
		snapshot: true,
		apply: func(current, next *models.Head, _ time.Time) error {
			if !current.IsTrashed() {
				return invalid("status", string(current.Status), "item is not in trash")
			}
			next.Status = models.StatusDraft
			next.TrashedAt = nil
			next.TrashedBy = nil
			return nil
		},
	})
}

// DeleteInput configures DeleteByUID.
type DeleteInput struct {
	IfMatch string
	Actor   string
}

// DeleteByUID permanently removes a trashed item. History rows stay.
func (s *Service) DeleteByUID(ctx context.Context, uid string, in DeleteInput) error {
	current, err := s.conn.GetByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("delete %s: %w", uid, err)
	}
	if current == nil {
		return notFound(uid)
	}
	if err := AssertIfMatch(in.IfMatch, current.ETag); err != nil {
		return err
	}
	if !current.IsTrashed() {
		return invalid("status", string(current.Status), "item must be in trash before it can be deleted")
	}

	deleted, err := s.conn.DeleteByUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("delete %s: %w", uid, err)
	}
	if !deleted {
		return notFound(uid)
	}

	s.notify(ctx, Event{Type: EventDelete, UID: uid, Row: current.Clone(), Previous: current, ActorUserUID: in.Actor})
	return nil
}

// EmptyTrash deletes up to limit trashed items and returns how many were
// removed. Each deletion is independent; failures are logged and skipped.
func (s *Service) EmptyTrash(ctx context.Context, limit int, actor string) (int, error) {
	limit = clamp(limit, defaultTrashLimit, maxTrashLimit)
	res, err := s.conn.List(ctx, models.ListFilter{Status: models.StatusTrash, Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("empty trash: %w", err)
	}

	deleted := 0
	for _, h := range res.Items {
		r := attempt(func() (struct{}, error) {
			return struct{}{}, s.DeleteByUID(ctx, h.UID, DeleteInput{Actor: actor})
		})
		if !r.OK() {
			s.logger.Warn("empty trash: delete failed", "uid", h.UID, "op", "empty_trash", "error", r.Err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// LockByUID takes or refreshes the advisory lock for actor. The lock write
// leaves version and etag alone.
func (s *Service) LockByUID(ctx context.Context, uid, actor string) (*models.Head, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, invalid("actor", "", "is required to lock an item")
	}
	now := s.now()
	req := connector.LockRequest{Actor: actor, At: now, StaleBefore: now.Add(-s.lockTTL)}
	return s.setLock(ctx, EventLock, uid, req, func(current *models.Head) error {
		if by, at, held := lockHolder(current, actor, now, s.lockTTL); held {
			return &LockedError{LockedBy: by, LockedAt: at}
		}
		return nil
	})
}

// UnlockByUID clears the advisory lock. Another actor's lock is only
// cleared with force.
func (s *Service) UnlockByUID(ctx context.Context, uid, actor string, force bool) (*models.Head, error) {
	req := connector.LockRequest{Actor: actor, Release: true, Force: force}
	return s.setLock(ctx, EventUnlock, uid, req, func(current *models.Head) error {
		if !canRelease(current, actor, force) {
			return lockedBy(current)
		}
		return nil
	})
}

// setLock checks the loaded row, then hands the write to the connector,
// which repeats the check atomically against the stored row.
func (s *Service) setLock(ctx context.Context, op EventType, uid string, req connector.LockRequest, check func(current *models.Head) error) (*models.Head, error) {
	current, err := s.conn.GetByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, uid, err)
	}
	if current == nil {
		return nil, notFound(uid)
	}
	if err := check(current); err != nil {
		return nil, err
	}

	saved, err := s.conn.SetLock(ctx, uid, req)
	switch {
	case errors.Is(err, connector.ErrLockHeld):
		latest, gerr := s.conn.GetByUID(ctx, uid)
		if gerr != nil || latest == nil {
			return nil, &LockedError{}
		}
		return nil, lockedBy(latest)
	case err != nil:
		return nil, fmt.Errorf("%s %s: %w", op, uid, err)
	case saved == nil:
		return nil, notFound(uid)
	}

	s.notify(ctx, Event{Type: op, UID: uid, Row: saved.Clone(), Previous: current, ActorUserUID: req.Actor})
	return saved, nil
}

func clamp(v, def, upper int) int {
	if v <= 0 {
		return def
	}
	return min(v, upper)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
