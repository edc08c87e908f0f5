// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler tests.
// Every test runs against the in-memory connector, so no external service
// is needed.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"cmskit/internal/cms"
	"cmskit/internal/connector/memory"
	"cmskit/internal/middleware"
	"cmskit/internal/password"
	"cmskit/internal/render"
	"cmskit/internal/unlock"
)

// fakeCache is an in-process PayloadCache that counts hits.
type fakeCache struct {
	mu    sync.Mutex
	items map[string]*render.Payload
	hits  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]*render.Payload)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*render.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[key]
	if ok {
		c.hits++
	}
	return p, ok
}

func (c *fakeCache) Set(_ context.Context, key string, p *render.Payload) {
	if p.Protected {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = p
}

// testEnv bundles a service and a router mounting every handler.
type testEnv struct {
	svc     *cms.Service
	cache   *fakeCache
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := cms.New(memory.New(), cms.Options{
		Logger: logger,
		Hasher: password.Bcrypt{Cost: bcrypt.MinCost},
		Tokens: unlock.NewIssuer([]byte("handler-secret"), time.Hour),
	})
	payloads := newFakeCache()
	admin := NewAdmin(svc, middleware.DefaultAuthorizer(), logger)
	public := NewPublic(svc, payloads, logger)

	r := chi.NewRouter()
	r.Use(middleware.ResolveActor(middleware.HeaderResolver{}, logger))
	r.Route("/admin/api/items", func(r chi.Router) {
		r.Get("/", admin.ListItems)
		r.Post("/", admin.CreateItem)
		r.Post("/empty-trash", admin.EmptyTrash)
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", admin.GetItem)
			r.Patch("/", admin.UpdateItem)
			r.Delete("/", admin.DeleteItem)
			r.Post("/publish", admin.PublishItem)
			r.Post("/trash", admin.TrashItem)
			r.Post("/restore", admin.RestoreItem)
			r.Post("/lock", admin.LockItem)
			r.Delete("/lock", admin.UnlockItem)
			r.Get("/history", admin.ListHistory)
			r.Post("/history/{historyID}/restore", admin.RestoreHistory)
			r.Post("/history/{historyID}/soft-delete", admin.SoftDeleteHistory)
			r.Delete("/history/{historyID}", admin.HardDeleteHistory)
			r.Get("/collaborators", admin.ListCollaborators)
			r.Put("/collaborators", admin.ReplaceCollaborators)
		})
	})
	r.Get("/api/content/{slug}", public.Payload)
	r.Post("/api/content/{slug}/unlock", public.Unlock)

	return &testEnv{svc: svc, cache: payloads, handler: r}
}

// request describes one call against the test router.
type request struct {
	method  string
	path    string
	body    any
	actor   string
	roles   string
	ifMatch string
	headers map[string]string
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(data)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.actor != "" {
		r.Header.Set(middleware.HeaderActorUID, req.actor)
		r.Header.Set(middleware.HeaderActorRoles, req.roles)
	}
	if req.ifMatch != "" {
		r.Header.Set("If-Match", req.ifMatch)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	return rr
}

// createItem creates a draft through the API and returns its decoded body.
func (e *testEnv) createItem(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	rr := e.do(t, request{method: http.MethodPost, path: "/admin/api/items", body: body, actor: "alice", roles: "editor"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	return decode(t, rr)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func chiContext(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}
