package database

import (
	"io/fs"
	"testing"
)

// 埋め込みマイグレーションがup/down対で揃っていることを検証
func TestMigrationsFS_UpDownPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migration files")
	}
	if len(entries)%2 != 0 {
		t.Errorf("migrations should come in up/down pairs, got %d files", len(entries))
	}

	ups, downs := 0, 0
	for _, e := range entries {
		name := e.Name()
		switch {
		case hasSuffix(name, ".up.sql"):
			ups++
		case hasSuffix(name, ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected migration file name: %s", name)
		}
	}
	if ups != downs {
		t.Errorf("up migrations = %d, down migrations = %d, want equal", ups, downs)
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
