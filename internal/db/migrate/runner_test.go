package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"voiceagent-platform/internal/db"
)

func TestRun_RejectsBadInput(t *testing.T) {
	if err := Run("", "up"); err == nil {
		t.Fatalf("expected error for empty url")
	}
	for _, dir := range []string{"", "sideways", "UP"} {
		if err := Run("postgres://localhost/x", dir); err == nil || !strings.Contains(err.Error(), "direction") {
			t.Fatalf("direction %q: expected direction error, got %v", dir, err)
		}
	}
}

func TestMigrationFS_HasPairedFiles(t *testing.T) {
	ups, err := fs.Glob(db.MigrationFS, "migrations/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	downs, err := fs.Glob(db.MigrationFS, "migrations/*.down.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("expected paired migrations, got %d up / %d down", len(ups), len(downs))
	}
}
