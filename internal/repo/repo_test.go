package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"aivora/internal/db"
	"aivora/internal/domain"
	"aivora/internal/migrate"
	"aivora/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	return repo.Repo{DB: conn, Now: func() time.Time {
		return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	}}
}

func TestTokenRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.GetToken(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("empty store: want ErrNotFound, got %v", err)
	}
	if err := r.SetToken(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "tok-1" {
		t.Fatalf("token: %q", got)
	}

	// Setting again overwrites the single row.
	if err := r.SetToken(ctx, "tok-2"); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.GetToken(ctx); got != "tok-2" {
		t.Fatalf("token after overwrite: %q", got)
	}

	if err := r.ClearToken(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetToken(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("after clear: want ErrNotFound, got %v", err)
	}
	// Clearing an absent key is not an error.
	if err := r.ClearToken(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestUserSnapshotRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.GetUser(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("empty store: want ErrNotFound, got %v", err)
	}
	want := domain.User{ID: "u1", Name: "Alex", Email: "alex@example.com"}
	if err := r.SetUser(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetUser(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("user: got %+v, want %+v", got, want)
	}
	if err := r.ClearUser(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetUser(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("after clear: want ErrNotFound, got %v", err)
	}
}

func TestTokenAndUserAreIndependentKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.SetToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetUser(ctx, domain.User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.ClearToken(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetUser(ctx); err != nil {
		t.Fatalf("clearing the token must not touch the user: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run must be a no-op: %v", err)
	}
	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version < 1 {
		t.Fatalf("schema version: %d", version)
	}
}
