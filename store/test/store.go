package test

import (
	"context"
	"os"
	"testing"

	"github.com/hrygo/decade/internal/profile"
	"github.com/hrygo/decade/store"
	"github.com/hrygo/decade/store/db"
)

// NewTestingStore opens a migrated store. SQLite runs in memory; PostgreSQL is
// used when DECADE_TEST_DRIVER=postgres and DECADE_TEST_POSTGRES_DSN are set.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	profile := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, profile)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if profile.Driver == "postgres" {
			resetPostgres(t, s)
		}
		_ = s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	switch getDriverFromEnv() {
	case "postgres":
		dsn := os.Getenv("DECADE_TEST_POSTGRES_DSN")
		if dsn == "" {
			t.Skip("DECADE_TEST_POSTGRES_DSN is not set")
		}
		return &profile.Profile{Mode: "dev", Driver: "postgres", DSN: dsn}
	default:
		return &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: ":memory:"}
	}
}

func getDriverFromEnv() string {
	driver := os.Getenv("DECADE_TEST_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}

// resetPostgres drops the schema so the next test starts from LATEST.sql.
func resetPostgres(t *testing.T, s *store.Store) {
	for _, table := range []string{"memory_vector", "vector_collection", "memory_record", "system_setting"} {
		if _, err := s.GetDriver().GetDB().Exec("DROP TABLE IF EXISTS " + table); err != nil {
			t.Logf("failed to drop %s: %v", table, err)
		}
	}
}
