package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_tags.up.sql":       {Data: []byte("CREATE TABLE tags (id INTEGER)")},
		"migrations/001_create_blog.up.sql":    {Data: []byte("CREATE TABLE authors (id INTEGER)")},
		"migrations/001_create_blog.down.sql":  {Data: []byte("DROP TABLE authors")},
		"migrations/README.md":                 {Data: []byte("not a migration")},
		"migrations/nested/003_ignored.up.sql": {Data: []byte("SELECT 1")},
	}

	migrations, err := Load(fsys, "migrations")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	first := migrations[0]
	if first.Version != 1 || first.Name != "create_blog" {
		t.Errorf("unexpected first migration: %d %s", first.Version, first.Name)
	}
	if first.Down != "DROP TABLE authors" {
		t.Errorf("unexpected down SQL: %q", first.Down)
	}
	if migrations[1].Version != 2 || migrations[1].Down != "" {
		t.Errorf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "down without up",
			fsys: fstest.MapFS{"m/001_x.down.sql": {Data: []byte("DROP TABLE x")}},
		},
		{
			name: "conflicting names",
			fsys: fstest.MapFS{
				"m/001_a.up.sql": {Data: []byte("SELECT 1")},
				"m/001_b.up.sql": {Data: []byte("SELECT 2")},
			},
		},
		{
			name: "missing directory",
			fsys: fstest.MapFS{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.fsys, "m"); err == nil {
				t.Error("expected Load() to fail")
			}
		})
	}
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	m := &Migration{Version: 7, Name: "add_excerpt", Up: "ALTER TABLE articles ADD excerpt TEXT", Down: "SELECT 1"}

	upPath, downPath, err := WriteFiles(dir, m)
	if err != nil {
		t.Fatalf("WriteFiles() failed: %v", err)
	}
	if filepath.Base(upPath) != "007_add_excerpt.up.sql" || filepath.Base(downPath) != "007_add_excerpt.down.sql" {
		t.Errorf("unexpected file names: %s %s", upPath, downPath)
	}

	loaded, err := Load(os.DirFS(dir), ".")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Up != m.Up || loaded[0].Version != 7 {
		t.Errorf("written migration does not load back: %+v", loaded)
	}
}
