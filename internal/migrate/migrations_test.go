package migrate_test

import (
	"testing"

	"trackline/internal/db"
	"trackline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	got, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got != latest || latest < 2 {
		t.Fatalf("schema version %d, latest %d", got, latest)
	}
}

func TestSingleActiveSprintIndex(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stmts := []string{
		`INSERT INTO users(id,username,created_at) VALUES ('u1','owner','2024-01-01T00:00:00Z')`,
		`INSERT INTO workspaces(id,name,owner_id,created_at) VALUES ('ws','ws','u1','2024-01-01T00:00:00Z')`,
		`INSERT INTO work_lists(id,workspace_id,name,created_at) VALUES ('wl','ws','wl','2024-01-01T00:00:00Z')`,
		`INSERT INTO sprints(id,work_list_id,name,status,created_at,updated_at) VALUES ('s1','wl','one','ACTIVE','x','x')`,
		`INSERT INTO sprints(id,work_list_id,name,status,created_at,updated_at) VALUES ('s2','wl','two','PLANNING','x','x')`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	_, err = conn.Exec(`UPDATE sprints SET status='ACTIVE' WHERE id='s2'`)
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestVersionBeforeMigrateAndOnFailure(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	got, err := migrate.Version(conn)
	if err != nil || got != 0 {
		t.Fatalf("fresh database version = %d, %v", got, err)
	}
	conn.Close()
	if got, err := migrate.Version(conn); err == nil {
		t.Fatalf("closed database reported version %d without error", got)
	}
}
