// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"context"
	"fmt"
	"log/slog"

	"cmskit/internal/cms"
	"cmskit/internal/models"
)

// SeedActor is recorded as the author of seeded items.
const SeedActor = "system"

// welcomeContent is the markdown body of the seeded welcome page.
const welcomeContent = "# Welcome\n\nThis page was created on first start. Edit or trash it from the admin API.\n"

// Seed creates a published welcome page when the store holds no items.
// Seeding goes through svc so the row carries a valid version and etag.
func Seed(ctx context.Context, svc *cms.Service, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	res, err := svc.List(ctx, models.ListFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("seed check items: %w", err)
	}
	if res.Total > 0 {
		logger.Info("database already seeded, skipping")
		return nil
	}

	h, err := svc.Create(ctx, cms.CreateInput{
		Title:       "Welcome",
		Slug:        "welcome",
		Content:     welcomeContent,
		ContentType: models.ContentTypeMarkdown,
		Actor:       SeedActor,
	})
	if err != nil {
		return fmt.Errorf("seed create welcome page: %w", err)
	}
	if _, err := svc.PublishByUID(ctx, h.UID, cms.PublishInput{IfMatch: h.ETag, Actor: SeedActor}); err != nil {
		return fmt.Errorf("seed publish welcome page: %w", err)
	}

	logger.Info("database seeded with welcome page", "uid", h.UID, "slug", h.Slug)
	return nil
}
