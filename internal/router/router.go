// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for cmskit.
// Routes are split into the authenticated admin API and the public content
// API.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/handlers"
	"cmskit/internal/middleware"
)

// Deps are the handlers and policies the router wires together.
type Deps struct {
	Admin  *handlers.Admin
	Public *handlers.Public
	// Maintenance mounts operator endpoints when set.
	Maintenance *handlers.Maintenance
	Resolver    middleware.UserResolver
	Authz       middleware.Authorizer
	// UnlockLimiter throttles password attempts. Nil disables throttling.
	UnlockLimiter *middleware.RateLimiter
	Logger        *slog.Logger
}

// New creates the configured Chi router.
func New(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = middleware.HeaderResolver{}
	}
	authz := d.Authz
	if authz == nil {
		authz = middleware.DefaultAuthorizer()
	}
	can := func(p middleware.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(authz, p)
	}

	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecureHeaders)

	r.Get("/health", healthHandler)

	// Admin API: every route needs a resolved actor and a permission.
	r.Route("/admin/api/items", func(r chi.Router) {
		r.Use(middleware.ResolveActor(resolver, logger))
		r.Use(middleware.RequireActor)
		r.Use(middleware.NoStore)

		r.With(can(middleware.PermRead)).Get("/", d.Admin.ListItems)
		r.With(can(middleware.PermWrite)).Post("/", d.Admin.CreateItem)
		r.With(can(middleware.PermDelete)).Post("/empty-trash", d.Admin.EmptyTrash)

		r.Route("/{uid}", func(r chi.Router) {
			r.With(can(middleware.PermRead)).Get("/", d.Admin.GetItem)
			r.With(can(middleware.PermWrite)).Patch("/", d.Admin.UpdateItem)
			r.With(can(middleware.PermDelete)).Delete("/", d.Admin.DeleteItem)

			r.With(can(middleware.PermPublish)).Post("/publish", d.Admin.PublishItem)
			r.With(can(middleware.PermWrite)).Post("/trash", d.Admin.TrashItem)
			r.With(can(middleware.PermWrite)).Post("/restore", d.Admin.RestoreItem)

			// Force unlock is checked by the handler.
			r.With(can(middleware.PermWrite)).Post("/lock", d.Admin.LockItem)
			r.With(can(middleware.PermWrite)).Delete("/lock", d.Admin.UnlockItem)

			r.Route("/history", func(r chi.Router) {
				r.Use(can(middleware.PermHistory))
				r.Get("/", d.Admin.ListHistory)
				r.Post("/{historyID}/restore", d.Admin.RestoreHistory)
				r.Post("/{historyID}/soft-delete", d.Admin.SoftDeleteHistory)
				r.Delete("/{historyID}", d.Admin.HardDeleteHistory)
			})

			r.With(can(middleware.PermRead)).Get("/collaborators", d.Admin.ListCollaborators)
			r.With(can(middleware.PermCollaborators)).Put("/collaborators", d.Admin.ReplaceCollaborators)
		})
	})

	if d.Maintenance != nil {
		r.Route("/admin/api/maintenance", func(r chi.Router) {
			r.Use(middleware.ResolveActor(resolver, logger))
			r.Use(middleware.RequireActor)
			r.Use(middleware.NoStore)
			r.Use(can(middleware.PermMaintenance))

			r.Post("/cache/flush", d.Maintenance.FlushCache)
			r.Get("/archive/{uid}/{version}", d.Maintenance.ArchivedItem)
		})
	}

	// Public content API.
	r.Route("/api/content/{slug}", func(r chi.Router) {
		r.Get("/", d.Public.Payload)
		r.Group(func(r chi.Router) {
			if d.UnlockLimiter != nil {
				r.Use(d.UnlockLimiter.Middleware)
			}
			r.Post("/unlock", d.Public.Unlock)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
