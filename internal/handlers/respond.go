// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the admin and public JSON API on top of
// cms.Service. Conditional writes read If-Match; every response carrying a
// head row sets its ETag.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cmskit/internal/cms"
	"cmskit/internal/connector"
	"cmskit/internal/models"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error       string     `json:"error"`
	Message     string     `json:"message"`
	Field       string     `json:"field,omitempty"`
	CurrentETag string     `json:"current_etag,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeHead sends a head row with its ETag.
func writeHead(w http.ResponseWriter, status int, h *models.Head) {
	w.Header().Set("ETag", quoteETag(h.ETag))
	writeJSON(w, status, h)
}

func quoteETag(etag string) string {
	return `"` + etag + `"`
}

// writeError maps err onto a status code and JSON body. Unknown errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		conflict   *cms.ConflictError
		locked     *cms.LockedError
		validation *cms.ValidationError
		missing    *cms.NotFoundError
		authn      *cms.AuthenticationError
		authz      *cms.AuthorizationError
	)
	switch {
	case errors.As(err, &conflict):
		status := http.StatusPreconditionFailed
		if conflict.Reason == cms.ReasonSlugChangeUnconfirmed {
			status = http.StatusConflict
		}
		if conflict.CurrentETag != "" {
			w.Header().Set("ETag", quoteETag(conflict.CurrentETag))
		}
		writeJSON(w, status, errorBody{Error: conflict.Reason, Message: conflict.Error(), CurrentETag: conflict.CurrentETag})
	case errors.As(err, &locked):
		at := locked.LockedAt
		writeJSON(w, http.StatusLocked, errorBody{Error: "locked", Message: locked.Error(), LockedBy: locked.LockedBy, LockedAt: &at})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Message: validation.Error(), Field: validation.Field})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: missing.Error()})
	case errors.As(err, &authn):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: authn.Error()})
	case errors.As(err, &authz):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: authz.Error()})
	case errors.Is(err, connector.ErrUnsupported), errors.Is(err, cms.ErrUnlockDisabled), errors.Is(err, ErrNotConfigured):
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not_implemented", Message: err.Error()})
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal server error"})
	}
}
