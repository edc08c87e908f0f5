// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cmskit/internal/connector"
	"cmskit/internal/connector/memory"
	"cmskit/internal/models"
	"cmskit/internal/password"
	"cmskit/internal/unlock"
)

// fakeClock advances by one second on every reading so successive writes
// get distinct timestamps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	conn  *memory.Connector
	clock *fakeClock
}

func newFixture(t *testing.T, mod ...func(*Options)) *fixture {
	t.Helper()
	clock := newFakeClock()
	conn := memory.New()
	opts := Options{
		Clock:  clock.Now,
		Hasher: password.Bcrypt{Cost: bcrypt.MinCost},
		Tokens: unlock.NewIssuer([]byte("test-secret"), time.Hour),
	}
	for _, m := range mod {
		m(&opts)
	}
	return &fixture{svc: New(conn, opts), conn: conn, clock: clock}
}

func (f *fixture) create(t *testing.T, slug string) *models.Head {
	t.Helper()
	h, err := f.svc.Create(context.Background(), CreateInput{
		Title:       "Item " + slug,
		Slug:        slug,
		Content:     "<p>hi</p>",
		ContentType: models.ContentTypeHTML,
		Actor:       "author",
	})
	require.NoError(t, err)
	return h
}

func ptr[T any](v T) *T { return &v }

// flakyConnector wraps a connector and injects failures.
type flakyConnector struct {
	connector.Connector

	historyErr   error
	historyPanic bool
	deleteFail   map[string]bool
	// race, when set, runs once right before the next UpdateByUID.
	race func()
	// lockRace, when set, runs once right before the next SetLock.
	lockRace func()
}

func (c *flakyConnector) InsertHistory(ctx context.Context, h *models.History) (*models.History, error) {
	if c.historyPanic {
		panic("history store exploded")
	}
	if c.historyErr != nil {
		return nil, c.historyErr
	}
	return c.Connector.InsertHistory(ctx, h)
}

func (c *flakyConnector) UpdateByUID(ctx context.Context, uid string, expected int64, next *models.Head) (*models.Head, error) {
	if race := c.race; race != nil {
		c.race = nil
		race()
	}
	return c.Connector.UpdateByUID(ctx, uid, expected, next)
}

func (c *flakyConnector) SetLock(ctx context.Context, uid string, req connector.LockRequest) (*models.Head, error) {
	if race := c.lockRace; race != nil {
		c.lockRace = nil
		race()
	}
	return c.Connector.SetLock(ctx, uid, req)
}

func (c *flakyConnector) DeleteByUID(ctx context.Context, uid string) (bool, error) {
	if c.deleteFail[uid] {
		return false, errors.New("disk full")
	}
	return c.Connector.DeleteByUID(ctx, uid)
}

// bumpVersion writes directly to conn, simulating a concurrent editor.
func bumpVersion(t *testing.T, conn connector.Connector, uid string) {
	t.Helper()
	ctx := context.Background()
	cur, err := conn.GetByUID(ctx, uid)
	require.NoError(t, err)
	next := cur.Clone()
	next.VersionNumber++
	next.ETag = ComputeETag(uid, next.VersionNumber)
	next.Title = "edited elsewhere"
	_, err = conn.UpdateByUID(ctx, uid, cur.VersionNumber, next)
	require.NoError(t, err)
}
