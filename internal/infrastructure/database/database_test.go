package database

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"testing"
)

//go:embed testdata/*.up.sql
var testMigrationsFS embed.FS

func openTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return db
}

// useTestMigrations points the package-level migration source at the
// testdata files and restores the previous source afterwards.
func useTestMigrations(t *testing.T) {
	t.Helper()

	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS = testMigrationsFS
	MigrationsDir = "testdata"
	t.Cleanup(func() {
		MigrationsFS = prevFS
		MigrationsDir = prevDir
	})
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestMigrateAppliesAllPending(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Both migrations applied: table exists with the added column.
	if _, err := db.ExecContext(ctx,
		"INSERT INTO widgets (id, name, color) VALUES ('w1', 'widget', 'blue')"); err != nil {
		t.Errorf("schema incomplete after Migrate(): %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d after re-run, want 2", count)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		input       string
		wantVersion string
		wantDesc    string
	}{
		{"20260830_120000_initial_schema.up.sql", "20260830_120000", "initial_schema"},
		{"20260830_130000_add_widget_color.up.sql", "20260830_130000", "add_widget_color"},
		{"malformed.up.sql", "", ""},
	}

	for _, tt := range tests {
		version, desc := parseMigrationName(tt.input)
		if version != tt.wantVersion || desc != tt.wantDesc {
			t.Errorf("parseMigrationName(%q) = (%q, %q), want (%q, %q)",
				tt.input, version, desc, tt.wantVersion, tt.wantDesc)
		}
	}
}
