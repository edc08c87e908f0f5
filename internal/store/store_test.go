// store_test.go provides the shared helpers for the PostgreSQL connector
// tests: a sqlmock-backed connector for unit tests and a real database
// handle for integration tests, which are skipped if PostgreSQL is not
// available.
package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"cmskit/internal/database"
	"cmskit/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "cmskit")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "cmskit")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// cleanItems removes test rows by uid. Call in t.Cleanup().
func cleanItems(t *testing.T, db *sql.DB, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		db.Exec("DELETE FROM cms_items WHERE uid = $1", uid)
		db.Exec("DELETE FROM cms_history WHERE cms_uid = $1", uid)
	}
}

func newMock(t *testing.T) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var fixedTime = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func sampleHead(uid string, version int64) *models.Head {
	return &models.Head{
		UID:           uid,
		Title:         "Hello",
		Content:       "<p>hi</p>",
		ContentType:   models.ContentTypeHTML,
		Slug:          "hello",
		Locale:        "en",
		PostType:      "page",
		Status:        models.StatusDraft,
		Options:       json.RawMessage(`{}`),
		Tags:          []string{"a"},
		VersionNumber: version,
		ETag:          "etag",
		CreatedAt:     fixedTime,
		UpdatedAt:     fixedTime,
	}
}

func ptr[T any](v T) *T { return &v }

// headRow renders h as a result row in headColumns order.
func headRow(h *models.Head) []driver.Value {
	tags, _ := json.Marshal(h.Tags)
	opt := func(s *string) driver.Value {
		if s == nil {
			return nil
		}
		return *s
	}
	ts := func(t *time.Time) driver.Value {
		if t == nil {
			return nil
		}
		return *t
	}
	return []driver.Value{
		h.UID, h.Title, h.Content, string(h.ContentType), h.Slug, h.Locale, h.PostType,
		string(h.Status), []byte(h.Options), tags, opt(h.PasswordHash), int64(h.PasswordVersion),
		h.VersionNumber, h.ETag, opt(h.LockedBy), ts(h.LockedAt), ts(h.PublishedAt),
		ts(h.FirstPublishedAt), ts(h.TrashedAt), opt(h.TrashedBy), opt(h.CreatedBy),
		h.CreatedAt, h.UpdatedAt,
	}
}

func headRows(heads ...*models.Head) *sqlmock.Rows {
	rows := sqlmock.NewRows(headColumns)
	for _, h := range heads {
		rows.AddRow(headRow(h)...)
	}
	return rows
}
