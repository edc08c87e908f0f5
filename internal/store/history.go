// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cmskit/internal/models"
)

// historyColumns lists cms_history columns in scanHistory order.
const historyColumns = `id, cms_uid, revision, snapshot, created_by, created_at,
	soft_deleted_at, soft_deleted_by`

// scanHistory reads one cms_history row selected with historyColumns.
func scanHistory(s scanner) (*models.History, error) {
	var (
		h        models.History
		snapshot []byte
	)
	err := s.Scan(
		&h.ID, &h.CmsUID, &h.Revision, &snapshot, &h.CreatedBy, &h.CreatedAt,
		&h.SoftDeletedAt, &h.SoftDeletedBy,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 && string(snapshot) != "null" {
		h.Snapshot = &models.Snapshot{}
		if err := json.Unmarshal(snapshot, h.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", h.ID, err)
		}
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}

// InsertHistory stores a revision and returns it with its generated id.
func (c *Connector) InsertHistory(ctx context.Context, h *models.History) (*models.History, error) {
	var snapshot []byte
	if h.Snapshot != nil {
		b, err := json.Marshal(h.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		snapshot = b
	}
	row, err := scanHistory(c.q.QueryRowContext(ctx, `
		INSERT INTO cms_history (cms_uid, revision, snapshot, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+historyColumns,
		h.CmsUID, h.Revision, snapshot, h.CreatedBy, h.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	return row, nil
}

// GetHistoryByID retrieves a revision. Returns nil if not found.
func (c *Connector) GetHistoryByID(ctx context.Context, id int64) (*models.History, error) {
	row, err := scanHistory(c.q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM cms_history WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history by id: %w", err)
	}
	return row, nil
}

// UpdateHistoryByID writes the soft-delete markers of a revision. Snapshots
// are immutable. Returns nil if not found.
func (c *Connector) UpdateHistoryByID(ctx context.Context, id int64, h *models.History) (*models.History, error) {
	row, err := scanHistory(c.q.QueryRowContext(ctx, `
		UPDATE cms_history SET soft_deleted_at = $2, soft_deleted_by = $3
		WHERE id = $1
		RETURNING `+historyColumns,
		id, h.SoftDeletedAt, h.SoftDeletedBy,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update history: %w", err)
	}
	return row, nil
}

// DeleteHistoryByID permanently removes a revision.
func (c *Connector) DeleteHistoryByID(ctx context.Context, id int64) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM cms_history WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete history rows affected: %w", err)
	}
	return n > 0, nil
}

// ListHistory returns revisions of cmsUID, newest first.
func (c *Connector) ListHistory(ctx context.Context, cmsUID string, filter models.HistoryFilter) ([]*models.History, error) {
	query := `SELECT ` + historyColumns + ` FROM cms_history WHERE cms_uid = $1`
	args := []any{cmsUID}
	if !filter.IncludeSoftDeleted {
		query += ` AND soft_deleted_at IS NULL`
	}
	query += ` ORDER BY id DESC`
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
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []*models.History{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
