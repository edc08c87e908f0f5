// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"cmskit/internal/connector"
	"cmskit/internal/models"
)

// DefaultCollaboratorRole is used when a collaborator has no role.
const DefaultCollaboratorRole = "editor"

// CollaboratorInput is one entry of a replacement list.
type CollaboratorInput struct {
	UserUID string `json:"user_uid"`
	Role    string `json:"role"`
}

// ListCollaborators returns the collaborators of an existing item.
func (s *Service) ListCollaborators(ctx context.Context, uid string) ([]models.Collaborator, error) {
	links, ok := connector.AsLinkStore(s.conn)
	if !ok {
		return nil, fmt.Errorf("list collaborators: %w", connector.ErrUnsupported)
	}
	if _, err := s.GetByUID(ctx, uid); err != nil {
		return nil, err
	}
	out, err := links.ListCollaborators(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list collaborators %s: %w", uid, err)
	}
	return out, nil
}

// ReplaceCollaborators swaps the full collaborator list of an item. Users
// already present keep their original added_at and added_by. The existence
// check and the write share a transaction when the connector has one.
func (s *Service) ReplaceCollaborators(ctx context.Context, uid string, in []CollaboratorInput, actor string) ([]models.Collaborator, error) {
	if !connector.Supports(s.conn, connector.CapEntityLinks) {
		return nil, fmt.Errorf("replace collaborators: %w", connector.ErrUnsupported)
	}
	wanted, err := normalizeCollaborators(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		head *models.Head
		out  []models.Collaborator
	)
	replace := func(c connector.Connector) error {
		h, err := c.GetByUID(ctx, uid)
		if err != nil {
			return fmt.Errorf("replace collaborators %s: %w", uid, err)
		}
		if h == nil {
			return notFound(uid)
		}
		links, ok := connector.AsLinkStore(c)
		if !ok {
			return fmt.Errorf("replace collaborators: %w", connector.ErrUnsupported)
		}
		existing, err := links.ListCollaborators(ctx, uid)
		if err != nil {
			return fmt.Errorf("replace collaborators %s: %w", uid, err)
		}
		known := make(map[string]models.Collaborator, len(existing))
		for _, e := range existing {
			known[e.UserUID] = e
		}

		rows := make([]models.Collaborator, 0, len(wanted))
		for _, w := range wanted {
			row := models.Collaborator{CmsUID: uid, UserUID: w.UserUID, Role: w.Role, AddedBy: optional(actor), AddedAt: now}
			if prev, ok := known[w.UserUID]; ok {
				row.AddedBy = prev.AddedBy
				row.AddedAt = prev.AddedAt
			}
			rows = append(rows, row)
		}

		out, err = links.ReplaceCollaborators(ctx, uid, rows)
		if err != nil {
			return fmt.Errorf("replace collaborators %s: %w", uid, err)
		}
		head = h
		return nil
	}

	if tx, ok := connector.AsTransactor(s.conn); ok {
		err = tx.WithTx(ctx, replace)
	} else {
		err = replace(s.conn)
	}
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Event{Type: EventCollaboratorsReplace, UID: uid, Row: head, Previous: head, ActorUserUID: actor})
	return out, nil
}

func normalizeCollaborators(in []CollaboratorInput) ([]CollaboratorInput, error) {
	out := make([]CollaboratorInput, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c.UserUID = strings.TrimSpace(c.UserUID)
		c.Role = strings.TrimSpace(c.Role)
		if c.UserUID == "" {
			return nil, invalid("collaborators", "", "user_uid is required")
		}
		if _, dup := seen[c.UserUID]; dup {
			return nil, invalid("collaborators", c.UserUID, "user is listed more than once")
		}
		seen[c.UserUID] = struct{}{}
		if c.Role == "" {
			c.Role = DefaultCollaboratorRole
		}
		if utf8.RuneCountInString(c.Role) > maxRoleLen {
			return nil, invalid("collaborators", c.Role, "role is too long (max 32 characters)")
		}
		out = append(out, c)
	}
	return out, nil
}
