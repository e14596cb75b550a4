// Package dbtest runs tests against every contractdb backend.
package dbtest

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btccustody/contractdb"

	// Register the bbolt driver under name "bdb".
	_ "github.com/btcsuite/btccustody/contractdb/bdb"

	// Register the SQLite driver under name "sqlite".
	_ "github.com/btcsuite/btccustody/contractdb/sqlitedb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DBFactory is a function type that creates a new database for testing
// purposes. It takes a testing.TB interface to allow for test failure when
// the database cannot be created, add cleanup logic and create a unique and
// isolated database for each test case.
type DBFactory func(t testing.TB) contractdb.DB

// DBTestFunc is a function type that defines the signature for database test
// functions that will be run against different database implementations.
type DBTestFunc func(t *testing.T, dbFactory DBFactory)

// Backends are the driver names RunDatabaseTest iterates.
var Backends = []string{"bdb", "sqlite"}

// RunDatabaseTest runs the same test function against every backend. It
// creates a new database for each test case, ensuring that tests are
// isolated and can run in parallel.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	for _, dbType := range Backends {
		dbType := dbType
		t.Run(dbType, func(t *testing.T) {
			t.Parallel()
			testFunc(t, NewFactory(dbType))
		})
	}
}

// NewFactory returns a DBFactory creating fresh databases of the given type
// in a temporary directory. Database files are named deterministically.
func NewFactory(dbType string) DBFactory {
	return func(t testing.TB) contractdb.DB {
		t.Helper()

		dbPath := filepath.Join(
			t.TempDir(), "custodytest_"+deterministicTestID(t)+".db",
		)
		db, err := contractdb.Create(dbType, dbPath)
		require.NoError(t, err, "failed to create %s database", dbType)

		t.Cleanup(func() {
			err := db.Close()
			assert.NoError(t, err, "failed to close %s database",
				dbType)
		})

		return db
	}
}

// deterministicTestID generates a deterministic identifier based on the test
// name. This ensures that Golang test caching works properly by avoiding
// random generations for the database name.
func deterministicTestID(t testing.TB) string {
	t.Helper()
	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))

	// This should never fail, but we handle it just in case.
	require.NoError(t, err)

	return fmt.Sprintf("%08x", h.Sum32())
}
