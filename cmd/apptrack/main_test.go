package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	idb "github.com/garnizeh/apptrack/internal/db"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("apptrack %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "apptrack.db")
	t.Setenv("APPTRACK_ENV", "development")
	t.Setenv("APPTRACK_DATABASE_PATH", path)
	t.Setenv("APPTRACK_STORAGE_ROOT", filepath.Join(dir, "media"))
	return path
}

func countJobs(t *testing.T, path string) int {
	t.Helper()
	ctx := context.Background()
	d, err := idb.New(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	var n int
	if err := d.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	return n
}

func TestDatabaseCommands(t *testing.T) {
	path := setup(t)
	backup := filepath.Join(filepath.Dir(path), "snapshot.bak")

	if out := run(t, "migrate"); !strings.Contains(out, "migrated") {
		t.Fatalf("migrate output = %q", out)
	}
	if out := run(t, "backup", backup); !strings.Contains(out, backup) {
		t.Fatalf("backup output = %q", out)
	}

	run(t, "scheduler", "--once")
	if n := countJobs(t, path); n == 0 {
		t.Fatalf("scheduler enqueued no jobs")
	}

	run(t, "restore", backup)
	if n := countJobs(t, path); n != 0 {
		t.Fatalf("expected the restored database to have no jobs, got %d", n)
	}
}

func TestRestoreRequiresFile(t *testing.T) {
	setup(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"restore"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an argument error")
	}
}

func TestVersion(t *testing.T) {
	if out := run(t, "version"); !strings.HasPrefix(out, "apptrack dev") {
		t.Fatalf("version output = %q", out)
	}
}
