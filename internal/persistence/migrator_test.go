package persistence

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationVersion(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"000001_cdp_log.up.sql", "000001"},
		{"000002_projections.down.sql", "000002"},
		{"nounderscore.sql", "nounderscore.sql"},
	}
	for _, c := range cases {
		if got := migrationVersion(c.name); got != c.want {
			t.Errorf("migrationVersion(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMigrationNamesOrderAndFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_projections.up.sql",
		"000001_cdp_log.up.sql",
		"000001_cdp_log.down.sql",
		"README.md",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "archive.up.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m := NewMigrator(nil, dir)
	names, err := m.migrationNames(".up.sql")
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}

	want := []string{"000001_cdp_log.up.sql", "000002_projections.up.sql"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d: %v", len(names), len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
