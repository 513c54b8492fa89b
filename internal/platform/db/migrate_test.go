package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadMigrationsSortsByVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002_counters.sql", "CREATE TABLE mr_counters();")
	writeFile(t, dir, "001_clinic_core.sql", "CREATE TABLE intake_submissions();")
	writeFile(t, dir, "010_indexes.sql", "CREATE INDEX idx ON intake_submissions(id);")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	wantVersions := []int{1, 2, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migration %d: version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_clinic_core.sql" {
		t.Errorf("first migration = %s, want 001_clinic_core.sql", migrations[0].Name)
	}
}

func TestLoadMigrationsSkipsNonMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001_core.sql", "SELECT 1;")
	writeFile(t, dir, "README.md", "docs")
	writeFile(t, dir, "notes.sql", "not a migration")
	writeFile(t, dir, "abc_bad.sql", "no numeric prefix")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	m := NewMigrator(nil, filepath.Join(t.TempDir(), "missing"))
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing migrations directory")
	}
}
