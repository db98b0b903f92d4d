package database

import (
	"strings"
	"testing"
)

func TestMigrationsAreWellFormed(t *testing.T) {
	seen := map[int]bool{}
	for _, m := range Migrations {
		if seen[m.Version] {
			t.Fatalf("duplicate migration version %d", m.Version)
		}
		seen[m.Version] = true

		if strings.TrimSpace(m.Up) == "" || strings.TrimSpace(m.Down) == "" {
			t.Errorf("migration %d must have both up and down statements", m.Version)
		}
	}
}

func TestSortedMigrations(t *testing.T) {
	sorted := sortedMigrations()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Version >= sorted[i].Version {
			t.Fatalf("migrations out of order at %d", i)
		}
	}
	if sorted[0].Version != 1 {
		t.Fatalf("expected first migration to be version 1, got %d", sorted[0].Version)
	}
}
