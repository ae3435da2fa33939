package sqlitemigrate

import (
	"context"
	"database/sql"
	"slices"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyMigrationsRunsInNameOrder(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"002_actions.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE actions(id INTEGER PRIMARY KEY, page_id INTEGER REFERENCES pages(id));")},
		"001_pages.sql":   &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE pages(id INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE pages;")},
		"README.md":       &fstest.MapFile{Data: []byte("not a migration")},
	}

	if err := ApplyMigrations(context.Background(), db, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	applied, err := Applied(context.Background(), db)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if want := []string{"001_pages.sql", "002_actions.sql"}; !slices.Equal(applied, want) {
		t.Fatalf("applied = %v, want %v", applied, want)
	}
	if !tableExists(t, db, "pages") || !tableExists(t, db, "actions") {
		t.Fatal("expected migrated tables")
	}
}

func TestApplyMigrationsSkipsAlreadyApplied(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_pages.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE pages(id INTEGER PRIMARY KEY);")},
	}

	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(context.Background(), db, migrations); err != nil {
			t.Fatalf("apply migrations run %d: %v", i, err)
		}
	}
	applied, err := Applied(context.Background(), db)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("applied = %v, want one migration", applied)
	}
}

func TestApplyMigrationsDoesNotRecordFailedMigration(t *testing.T) {
	db := openInMemoryDB(t)

	bad := fstest.MapFS{
		"001_pages.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREAT table pages(id INT);")},
	}
	if err := ApplyMigrations(context.Background(), db, bad); err == nil {
		t.Fatal("expected bad migration to fail")
	}
	if applied, _ := Applied(context.Background(), db); len(applied) != 0 {
		t.Fatalf("applied = %v, want none", applied)
	}

	good := fstest.MapFS{
		"001_pages.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE pages(id INTEGER PRIMARY KEY);")},
	}
	if err := ApplyMigrations(context.Background(), db, good); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if applied, _ := Applied(context.Background(), db); len(applied) != 1 {
		t.Fatalf("applied = %v, want fixed migration", applied)
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{content: "CREATE TABLE a(id INT);", want: "CREATE TABLE a(id INT);"},
		{content: "-- +migrate Up\nCREATE TABLE a(id INT);", want: "\nCREATE TABLE a(id INT);"},
		{content: "-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;", want: "\nCREATE TABLE a(id INT);\n"},
	}
	for _, tt := range tests {
		if got := ExtractUpMigration(tt.content); got != tt.want {
			t.Fatalf("ExtractUpMigration(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", tableName).Scan(&name)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}
