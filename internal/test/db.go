// Package test provides testing utilities shared across scalex packages.
package test

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/golangmigrator"
	"github.com/stretchr/testify/require"
)

// DatabaseURLEnv names the variable that enables Postgres-backed tests.
const DatabaseURLEnv = "SCALEX_TEST_DATABASE_URL"

// TestDB holds a connection to a throwaway database.
type TestDB struct {
	DB *sql.DB
}

// NewTestDB clones a migrated template database for the calling test. The
// test is skipped when SCALEX_TEST_DATABASE_URL is unset.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	raw := os.Getenv(DatabaseURLEnv)
	if raw == "" {
		t.Skipf("%s not set; skipping Postgres integration test", DatabaseURLEnv)
	}
	conf, err := pgConfig(raw)
	require.NoError(t, err)

	db := pgtestdb.New(t, conf, golangmigrator.New(migrationsDir()))
	return &TestDB{DB: db}
}

func pgConfig(raw string) (pgtestdb.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return pgtestdb.Config{}, fmt.Errorf("parse %s: %w", DatabaseURLEnv, err)
	}
	conf := pgtestdb.Config{
		DriverName: "pgx",
		Host:       u.Hostname(),
		Port:       u.Port(),
		User:       u.User.Username(),
		Database:   strings.TrimPrefix(u.Path, "/"),
		Options:    u.RawQuery,
	}
	conf.Password, _ = u.User.Password()
	if conf.Port == "" {
		conf.Port = "5432"
	}
	if conf.Database == "" {
		conf.Database = "postgres"
	}
	return conf, nil
}

// migrationsDir resolves internal/database/migrations relative to this file,
// so it works from any package's test working directory.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "database", "migrations")
}
