package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// SeedProject inserts a project owned by "owner-<id>". A non-empty token also stores that owner's
// GitHub credential, verbatim, so callers decide whether it is sealed.
func SeedProject(t testing.TB, db *sql.DB, id, repoURL, token string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo := sql.NullString{String: repoURL, Valid: repoURL != ""}
	owner := "owner-" + id
	if _, err := db.ExecContext(ctx,
		`INSERT INTO projects (id, name, repository_url, owner_user_id) VALUES ($1, $2, $3, $4)`,
		id, "project "+id, repo, owner,
	); err != nil {
		t.Fatalf("seed project %s: %v", id, err)
	}
	if token == "" {
		return
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO source_control_credentials (user_id, provider, access_token) VALUES ($1, 'github', $2)`,
		owner, token,
	); err != nil {
		t.Fatalf("seed credential for %s: %v", owner, err)
	}
}

// RunConcurrently starts every fn at once and fails t with the first error any of them returns.
func RunConcurrently(t testing.TB, fns ...func() error) {
	t.Helper()
	var g errgroup.Group
	for _, fn := range fns {
		g.Go(fn)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent operation failed: %v", err)
	}
}
