package migrations_test

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCarriesNoDemoData(t *testing.T) {
	db := openDB(t)
	if err := db.Migrate(migrations.Schema); err != nil {
		t.Fatalf("Migrate(Schema) error = %v", err)
	}

	for _, table := range []string{"companies", "users", "categories"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s rows after schema migration = %d, want 0", table, n)
		}
	}
}

func TestDemoSeedIsOptInAndIdempotent(t *testing.T) {
	db := openDB(t)
	if err := db.Migrate(migrations.Schema); err != nil {
		t.Fatalf("Migrate(Schema) error = %v", err)
	}
	if err := db.Migrate(migrations.DemoSeed); err != nil {
		t.Fatalf("Migrate(DemoSeed) error = %v", err)
	}

	var companies int
	if err := db.QueryRow(`SELECT COUNT(*) FROM companies`).Scan(&companies); err != nil {
		t.Fatalf("count companies: %v", err)
	}
	if companies != 1 {
		t.Errorf("companies after seed = %d, want 1", companies)
	}

	// Versions are tracked in the shared schema_migrations table, so a
	// second run inserts nothing.
	if err := db.Migrate(migrations.DemoSeed); err != nil {
		t.Fatalf("reapplying seed: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM companies`).Scan(&companies); err != nil {
		t.Fatalf("count companies: %v", err)
	}
	if companies != 1 {
		t.Errorf("companies after seed reapply = %d, want 1", companies)
	}
}
