// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"cmskit/internal/models"
)

type fakeFlusher struct {
	n   int
	err error
}

func (f *fakeFlusher) InvalidateAll(context.Context) (int, error) { return f.n, f.err }

type fakeArchive map[string]*models.Head

func (a fakeArchive) Fetch(_ context.Context, uid string, version int64) (*models.Head, error) {
	h, ok := a[uid]
	if !ok || h.VersionNumber != version {
		return nil, nil
	}
	return h, nil
}

func newMaintenanceRouter(m *Maintenance) http.Handler {
	r := chi.NewRouter()
	r.Post("/cache/flush", m.FlushCache)
	r.Get("/archive/{uid}/{version}", m.ArchivedItem)
	return r
}

func TestFlushCache(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("flushed", func(t *testing.T) {
		h := newMaintenanceRouter(NewMaintenance(&fakeFlusher{n: 3}, nil, logger))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/flush", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status: got %d", rr.Code)
		}
		if got := decode(t, rr)["deleted"]; got != float64(3) {
			t.Errorf("deleted: got %v, want 3", got)
		}
	})

	t.Run("cache down", func(t *testing.T) {
		h := newMaintenanceRouter(NewMaintenance(&fakeFlusher{err: errors.New("valkey down")}, nil, logger))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/flush", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status: got %d, want 500", rr.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		h := newMaintenanceRouter(NewMaintenance(nil, nil, logger))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cache/flush", nil))
		if rr.Code != http.StatusNotImplemented {
			t.Errorf("status: got %d, want 501", rr.Code)
		}
	})
}

func TestArchivedItem(t *testing.T) {
	archive := fakeArchive{"gone-item": {UID: "gone-item", Title: "Gone", VersionNumber: 4}}
	h := newMaintenanceRouter(NewMaintenance(nil, archive, slog.New(slog.DiscardHandler)))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/archive/gone-item/4", http.StatusOK},
		{"other version", "/archive/gone-item/3", http.StatusNotFound},
		{"never archived", "/archive/other/1", http.StatusNotFound},
		{"bad version", "/archive/gone-item/v4", http.StatusBadRequest},
		{"zero version", "/archive/gone-item/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusOK && decode(t, rr)["title"] != "Gone" {
				t.Errorf("body: %s", rr.Body.String())
			}
		})
	}
}
