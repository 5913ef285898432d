// Package dbtest opens throwaway SQLite databases carrying the production schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/am0414/success-academy-international/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// New returns a migrated in-memory database that is closed when the test ends.
// A single connection serializes concurrent callers the way row locks would.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = database.Migrate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}
