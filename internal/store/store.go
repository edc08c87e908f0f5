// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store is the PostgreSQL connector. It implements the base
// connector port and every optional capability over database/sql with the
// pgx driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"cmskit/internal/connector"
	"cmskit/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// slugConstraint guards (locale, post_type, slug) on cms_items.
const slugConstraint = "cms_items_slug_key"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connector persists heads, history and collaborators in PostgreSQL.
type Connector struct {
	db *sql.DB
	q  querier
	// tx is set on connectors handed to WithTx callbacks.
	tx *sql.Tx
}

var (
	_ connector.Connector        = (*Connector)(nil)
	_ connector.PublicHeadReader = (*Connector)(nil)
	_ connector.PublishedReader  = (*Connector)(nil)
	_ connector.Transactor       = (*Connector)(nil)
	_ connector.LinkStore        = (*Connector)(nil)
)

// New returns a Connector backed by db.
func New(db *sql.DB) *Connector {
	return &Connector{db: db, q: db}
}

// Capabilities advertises every optional feature.
func (c *Connector) Capabilities() []connector.Capability {
	return []connector.Capability{
		connector.CapPublicHead,
		connector.CapPublishedBySlug,
		connector.CapTransactions,
		connector.CapEntityLinks,
	}
}

// headColumns lists cms_items columns in scanHead order.
var headColumns = []string{
	"uid", "title", "content", "content_type", "slug", "locale", "post_type",
	"status", "options", "tags", "password_hash", "password_version",
	"version_number", "etag", "locked_by", "locked_at", "published_at",
	"first_published_at", "trashed_at", "trashed_by", "created_by",
	"created_at", "updated_at",
}

var (
	selectHead = strings.Join(headColumns, ", ")
	// selectPublicHead skips the body for cheap existence checks.
	selectPublicHead = strings.Replace(selectHead, "content, ", "'' AS content, ", 1)
)

type scanner interface {
	Scan(dest ...any) error
}

// scanHead reads one cms_items row selected with headColumns.
func scanHead(s scanner) (*models.Head, error) {
	var (
		h       models.Head
		options []byte
		tags    []byte
	)
	err := s.Scan(
		&h.UID, &h.Title, &h.Content, &h.ContentType, &h.Slug, &h.Locale, &h.PostType,
		&h.Status, &options, &tags, &h.PasswordHash, &h.PasswordVersion,
		&h.VersionNumber, &h.ETag, &h.LockedBy, &h.LockedAt, &h.PublishedAt,
		&h.FirstPublishedAt, &h.TrashedAt, &h.TrashedBy, &h.CreatedBy,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Options = json.RawMessage(options)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &h.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", h.UID, err)
		}
	}
	if h.Tags == nil {
		h.Tags = []string{}
	}
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return &h, nil
}

// headArgs returns the values of h in headColumns order.
func headArgs(h *models.Head) ([]any, error) {
	tags := h.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	options := []byte(h.Options)
	if len(options) == 0 {
		options = []byte("{}")
	}
	return []any{
		h.UID, h.Title, h.Content, h.ContentType, h.Slug, h.Locale, h.PostType,
		h.Status, options, tagsJSON, h.PasswordHash, h.PasswordVersion,
		h.VersionNumber, h.ETag, h.LockedBy, h.LockedAt, h.PublishedAt,
		h.FirstPublishedAt, h.TrashedAt, h.TrashedBy, h.CreatedBy,
		h.CreatedAt, h.UpdatedAt,
	}, nil
}

// GetByUID retrieves a head row. Returns nil if not found.
func (c *Connector) GetByUID(ctx context.Context, uid string) (*models.Head, error) {
	h, err := scanHead(c.q.QueryRowContext(ctx,
		`SELECT `+selectHead+` FROM cms_items WHERE uid = $1`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by uid: %w", err)
	}
	return h, nil
}

// List returns head rows matching filter, newest first, and the total
// number of matches.
func (c *Connector) List(ctx context.Context, filter models.ListFilter) (*models.ListResult, error) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.PostType != "" {
		add("post_type", filter.PostType)
	}
	if filter.Locale != "" {
		add("locale", filter.Locale)
	}
	if filter.Slug != "" {
		add("slug", filter.Slug)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	result := &models.ListResult{Items: []*models.Head{}}
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cms_items`+clause, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	query := `SELECT ` + selectHead + ` FROM cms_items` + clause + ` ORDER BY created_at DESC, uid ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		h, err := scanHead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		result.Items = append(result.Items, h)
	}
	return result, rows.Err()
}

// Insert stores a new head row.
func (c *Connector) Insert(ctx context.Context, head *models.Head) (*models.Head, error) {
	args, err := headArgs(head)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	placeholders := make([]string, len(headColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	h, err := scanHead(c.q.QueryRowContext(ctx,
		`INSERT INTO cms_items (`+selectHead+`) VALUES (`+strings.Join(placeholders, ", ")+`)
		RETURNING `+selectHead, args...))
	if isSlugConflict(err) {
		return nil, connector.ErrDuplicateSlug
	}
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return h, nil
}

// frozenColumns are never written by UpdateByUID. The lock columns belong
// to SetLock.
var frozenColumns = map[string]bool{
	"uid": true, "created_by": true, "created_at": true,
	"locked_by": true, "locked_at": true,
}

// UpdateByUID replaces the row when its stored version equals
// expectedVersion. It returns nil if the row does not exist and
// connector.ErrVersionMismatch if the version moved on.
func (c *Connector) UpdateByUID(ctx context.Context, uid string, expectedVersion int64, next *models.Head) (*models.Head, error) {
	all, err := headArgs(next)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	args := []any{uid, expectedVersion}
	sets := make([]string, 0, len(headColumns))
	for i, col := range headColumns {
		if frozenColumns[col] {
			continue
		}
		args = append(args, all[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	h, err := scanHead(c.q.QueryRowContext(ctx,
		`UPDATE cms_items SET `+strings.Join(sets, ", ")+`
		WHERE uid = $1 AND version_number = $2
		RETURNING `+selectHead, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, c.missOrMismatch(ctx, uid)
	case isSlugConflict(err):
		return nil, connector.ErrDuplicateSlug
	case err != nil:
		return nil, fmt.Errorf("update item: %w", err)
	}
	return h, nil
}

// SetLock writes locked_by and locked_at when req's condition holds. The
// condition sits in the WHERE clause so a racing lock cannot slip in.
func (c *Connector) SetLock(ctx context.Context, uid string, req connector.LockRequest) (*models.Head, error) {
	var (
		query string
		args  []any
	)
	if req.Release {
		query = `UPDATE cms_items SET locked_by = NULL, locked_at = NULL
		WHERE uid = $1 AND (locked_by IS NULL OR locked_by = $2 OR $3::boolean)
		RETURNING ` + selectHead
		args = []any{uid, req.Actor, req.Force}
	} else {
		query = `UPDATE cms_items SET locked_by = $2, locked_at = $3
		WHERE uid = $1 AND (locked_by IS NULL OR locked_by = '' OR locked_by = $2
			OR locked_at IS NULL OR locked_at <= $4)
		RETURNING ` + selectHead
		args = []any{uid, req.Actor, req.At, req.StaleBefore}
	}

	h, err := scanHead(c.q.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists, err := c.exists(ctx, uid)
		if err != nil || !exists {
			return nil, err
		}
		return nil, connector.ErrLockHeld
	case err != nil:
		return nil, fmt.Errorf("set lock: %w", err)
	}
	return h, nil
}

// missOrMismatch tells a missing row from a stale version after an UPDATE
// matched nothing.
func (c *Connector) missOrMismatch(ctx context.Context, uid string) error {
	exists, err := c.exists(ctx, uid)
	if err != nil {
		return err
	}
	if exists {
		return connector.ErrVersionMismatch
	}
	return nil
}

func (c *Connector) exists(ctx context.Context, uid string) (bool, error) {
	var exists bool
	if err := c.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cms_items WHERE uid = $1)`, uid).Scan(&exists); err != nil {
		return false, fmt.Errorf("check item exists: %w", err)
	}
	return exists, nil
}

// DeleteByUID removes a head row. Collaborators cascade; history does not.
func (c *Connector) DeleteByUID(ctx context.Context, uid string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM cms_items WHERE uid = $1`, uid)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete item rows affected: %w", err)
	}
	return n > 0, nil
}

// GetPublicHeadBySlug returns a published head without its body.
func (c *Connector) GetPublicHeadBySlug(ctx context.Context, slug, locale, postType string) (*models.Head, error) {
	return c.publishedBySlug(ctx, selectPublicHead, slug, locale, postType)
}

// GetPublishedBySlug returns the full published row for a slug.
func (c *Connector) GetPublishedBySlug(ctx context.Context, slug, locale, postType string) (*models.Head, error) {
	return c.publishedBySlug(ctx, selectHead, slug, locale, postType)
}

func (c *Connector) publishedBySlug(ctx context.Context, columns, slug, locale, postType string) (*models.Head, error) {
	h, err := scanHead(c.q.QueryRowContext(ctx,
		`SELECT `+columns+` FROM cms_items
		WHERE slug = $1 AND locale = $2 AND post_type = $3 AND status = 'published'`,
		slug, locale, postType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get published item by slug: %w", err)
	}
	return h, nil
}

// WithTx runs fn inside a database transaction. fn receives a connector
// bound to the transaction; it commits when fn returns nil. Nested calls
// reuse the outer transaction.
func (c *Connector) WithTx(ctx context.Context, fn func(tx connector.Connector) error) error {
	if c.tx != nil {
		return fn(c)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Connector{db: c.db, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isSlugConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == slugConstraint
}
