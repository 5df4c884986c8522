package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/config"
	"github.com/CerberoGS/CATAI-sub000/internal/db"
)

// OpenTestDB opens a migrated database. Postgres is used when TEST_DB_HOST is
// set, otherwise a throwaway sqlite file under t.TempDir().
func OpenTestDB(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "catai.db"),
	}
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg = config.DatabaseConfig{
			Driver:   "postgres",
			Host:     host,
			Port:     5432,
			User:     "catai",
			Password: "catai_pass",
			DBName:   "catai_test",
			SSLMode:  "disable",
		}
	}
	conn, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
