package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	tx := TxFromContext(context.Background())
	if tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not a tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil tx when context value is the wrong type")
	}
}

func TestLoadMigrations_ParsesVersionsAndSorts(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"002_lab.sql":    "CREATE TABLE lab_orders (id INT);",
		"001_core.sql":   "CREATE TABLE visits (id INT);",
		"notes.txt":      "ignored",
		"README.sql":     "ignored, no numeric prefix",
		"010_regret.sql": "ALTER TABLE visits ADD COLUMN x INT;",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantVersions := []int{1, 2, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migration %d: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}

	if migrations[0].Name != "001_core.sql" {
		t.Errorf("expected first migration 001_core.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL == "" {
		t.Error("expected migration SQL to be loaded")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Error("expected error for missing migrations directory")
	}
}
