package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "edge.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePutAndMatch(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	resp := makeResponse(200, "body")
	resp.Header.Set("Content-Type", "text/css")
	if err := s.Put(ctx, "v1", "GET /static/css/main.css", resp); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Match(ctx, "v1", "GET /static/css/main.css")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got.Status != 200 || string(got.Body) != "body" || got.Type != TypeBasic {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("content type = %q", got.Header.Get("Content-Type"))
	}
	if got.StoredAt.IsZero() {
		t.Fatal("expected stored_at to be set")
	}

	if err := s.Put(ctx, "v1", "GET /static/css/main.css", makeResponse(200, "updated")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Match(ctx, "v1", "GET /static/css/main.css")
	if string(got.Body) != "updated" {
		t.Fatalf("body after overwrite = %q", got.Body)
	}

	if _, err := s.Match(ctx, "v1", "GET /nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteGenerationLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Open(ctx, "wanderwise-cache-v0"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutAll(ctx, "wanderwise-cache-v1", []Entry{
		{Key: "GET /", Response: makeResponse(200, "root")},
		{Key: "GET /offline.html", Response: makeResponse(200, "offline")},
	}); err != nil {
		t.Fatalf("put all: %v", err)
	}

	names, err := s.Generations(ctx)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(names) != 2 || names[0] != "wanderwise-cache-v0" || names[1] != "wanderwise-cache-v1" {
		t.Fatalf("generations = %v", names)
	}

	if err := s.Delete(ctx, "wanderwise-cache-v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Match(ctx, "wanderwise-cache-v1", "GET /"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entry survived generation delete: %v", err)
	}
	names, _ = s.Generations(ctx)
	if len(names) != 1 {
		t.Fatalf("generations after delete = %v", names)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, "v1", "GET /", makeResponse(200, "root")); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Match(ctx, "v1", "GET /"); err != nil {
		t.Fatalf("match after reopen: %v", err)
	}
}
