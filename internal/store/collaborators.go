// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"

	"cmskit/internal/connector"
	"cmskit/internal/models"
)

// ListCollaborators returns the collaborators of cmsUID in the order they
// were last written.
func (c *Connector) ListCollaborators(ctx context.Context, cmsUID string) ([]models.Collaborator, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT cms_uid, user_uid, role, added_by, added_at
		FROM cms_collaborators
		WHERE cms_uid = $1
		ORDER BY position ASC
	`, cmsUID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	out := []models.Collaborator{}
	for rows.Next() {
		var col models.Collaborator
		if err := rows.Scan(&col.CmsUID, &col.UserUID, &col.Role, &col.AddedBy, &col.AddedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		col.AddedAt = col.AddedAt.UTC()
		out = append(out, col)
	}
	return out, rows.Err()
}

// ReplaceCollaborators swaps the full list for cmsUID. Outside WithTx it
// opens its own transaction.
func (c *Connector) ReplaceCollaborators(ctx context.Context, cmsUID string, collaborators []models.Collaborator) ([]models.Collaborator, error) {
	err := c.WithTx(ctx, func(tx connector.Connector) error {
		q := tx.(*Connector).q
		if _, err := q.ExecContext(ctx, `DELETE FROM cms_collaborators WHERE cms_uid = $1`, cmsUID); err != nil {
			return fmt.Errorf("clear collaborators: %w", err)
		}
		for i, col := range collaborators {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO cms_collaborators (cms_uid, user_uid, role, position, added_by, added_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, cmsUID, col.UserUID, col.Role, i, col.AddedBy, col.AddedAt); err != nil {
				return fmt.Errorf("insert collaborator %s: %w", col.UserUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Collaborator, len(collaborators))
	for i, col := range collaborators {
		col.CmsUID = cmsUID
		out[i] = col
	}
	return out, nil
}
