package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestFileScanner_ScanMigrations(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"002_add_index.sql":    {Data: []byte("CREATE INDEX idx_items_name ON items(name);")},
		"001_create_items.sql": {Data: []byte("-- Description: create items table\nCREATE TABLE items (id TEXT PRIMARY KEY, name TEXT);")},
		"010_seed.sql":         {Data: []byte("INSERT INTO items (id, name) VALUES ('a', 'b');")},
		"README.md":            {Data: []byte("ignored")},
		"nested/003_other.sql": {Data: []byte("CREATE TABLE other (id TEXT);")},
	}

	migrations, err := NewFileScanner().ScanMigrations(fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	order := []string{"001", "002", "010"}
	for i, want := range order {
		if migrations[i].Version != want {
			t.Fatalf("index %d: expected version %s, got %s", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Description != "create items table" {
		t.Fatalf("expected description from header, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "add index" {
		t.Fatalf("expected description from filename, got %q", migrations[1].Description)
	}
	if migrations[0].Checksum == "" {
		t.Fatal("expected checksum to be populated")
	}
}

func TestFileScanner_ScanMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
				"001_b.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
			},
			want: ErrDuplicateVersion,
		},
		{
			name: "bad filename",
			fsys: fstest.MapFS{"init.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "comment only",
			fsys: fstest.MapFS{"001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "unbalanced parentheses",
			fsys: fstest.MapFS{"001_broken.sql": {Data: []byte("CREATE TABLE a (id TEXT;")}},
			want: ErrInvalidMigrationFile,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFileScanner().ScanMigrations(tc.fsys)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFileScanner_ValidateFileName(t *testing.T) {
	t.Parallel()

	scanner := NewFileScanner()
	for _, name := range []string{"001_init.sql", "12_add-column.sql", "0003_x_y.sql"} {
		if err := scanner.ValidateFileName(name); err != nil {
			t.Fatalf("expected %s to be valid, got %v", name, err)
		}
	}
	for _, name := range []string{"init.sql", "001.sql", "001_init.txt", "v1_init.sql", "001_in it.sql"} {
		if err := scanner.ValidateFileName(name); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}
