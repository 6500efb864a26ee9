package session

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var schemaFS embed.FS

// Migrate brings the session schema up to date. Revisions ship inside
// the binary and apply once each, in lexical order, in their own
// transaction; the insert into session_schema_revisions doubles as the
// claim, so two harnesses pointed at one database cannot apply the
// same revision twice.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS session_schema_revisions (
		revision   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("session store: create revision table: %w", err)
	}

	for _, name := range schemaRevisions() {
		revision := strings.TrimSuffix(name, ".up.sql")
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("session store: begin revision %s: %w", revision, err)
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO session_schema_revisions(revision) VALUES($1) ON CONFLICT DO NOTHING`, revision)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("session store: claim revision %s: %w", revision, err)
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			continue
		}
		sql, err := schemaFS.ReadFile("migrations/" + name)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("session store: read revision %s: %w", revision, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("session store: apply revision %s: %w", revision, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("session store: commit revision %s: %w", revision, err)
		}
		slog.Info("applied session schema revision", "revision", revision)
	}
	return nil
}

// schemaRevisions lists the embedded revision files in apply order.
func schemaRevisions() []string {
	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
