package db_test

import (
	"context"
	"path/filepath"
	"testing"

	dbpkg "github.com/garnizeh/apptrack/internal/db"
)

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "apptrack.db")
	backup := filepath.Join(dir, "apptrack.db.bak")

	d, err := dbpkg.New(ctx, path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := d.Exec(ctx, `INSERT INTO items(name) VALUES ('kept')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := d.Backup(ctx, backup); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := d.Backup(ctx, backup); err == nil {
		t.Fatalf("expected error when the backup exists")
	}
	if _, err := d.Exec(ctx, `INSERT INTO items(name) VALUES ('lost')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := dbpkg.Restore(backup, path); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	d, err = dbpkg.New(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()
	var n int
	if err := d.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row after restore, got %d", n)
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	dir := t.TempDir()
	if err := dbpkg.Restore(filepath.Join(dir, "missing.bak"), filepath.Join(dir, "apptrack.db")); err == nil {
		t.Fatalf("expected error for a missing backup")
	}
}
