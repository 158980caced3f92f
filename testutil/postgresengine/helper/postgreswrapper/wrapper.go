package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

const truncateAll = "TRUNCATE TABLE circulation_journal, loans, book_copies, books, members RESTART IDENTITY"

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetEngine() *postgresengine.Engine
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	engine *postgresengine.Engine
}

func (e *PGXPoolWrapper) GetEngine() *postgresengine.Engine {
	return e.engine
}

func (e *PGXPoolWrapper) Close() {
	e.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db     *sql.DB
	engine *postgresengine.Engine
}

func (e *SQLDBWrapper) GetEngine() *postgresengine.Engine {
	return e.engine
}

func (e *SQLDBWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db     *sqlx.DB
	engine *postgresengine.Engine
}

func (e *SQLXWrapper) GetEngine() *postgresengine.Engine {
	return e.engine
}

func (e *SQLXWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the environment variable.
// The schema is applied before the wrapper is returned.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	var wrapper Wrapper

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
		require.NoError(t, err, "error connecting to DB pool in test setup")

		engine, err := postgresengine.NewEngineFromPGXPool(connPool, options...)
		require.NoError(t, err, "error creating engine")

		wrapper = &PGXPoolWrapper{pool: connPool, engine: engine}

	case typeSQLDB:
		db := config.PostgresSQLDBSingleConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		require.NoError(t, err, "error creating engine")

		wrapper = &SQLDBWrapper{db: db, engine: engine}

	case typeSQLXDB:
		db := config.PostgresSQLXSingleConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		require.NoError(t, err, "error creating engine")

		wrapper = &SQLXWrapper{db: db, engine: engine}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}

	err := wrapper.GetEngine().ApplySchema(context.Background())
	require.NoError(t, err, "error applying the schema in test setup")

	return wrapper
}

// CleanUp empties all circulation tables for the given wrapper
func CleanUp(t testing.TB, wrapper Wrapper) {
	ExecRaw(t, wrapper, truncateAll)
}

// ExecRaw runs a statement directly on the wrapped connection, bypassing the engine.
// Tests use it to arrange states the engine itself would never produce.
func ExecRaw(t testing.TB, wrapper Wrapper, query string, args ...any) int64 {
	var rowsAffected int64

	switch e := wrapper.(type) {
	case *PGXPoolWrapper:
		tag, err := e.pool.Exec(context.Background(), query, args...)
		assert.NoError(t, err, "error executing raw statement")
		rowsAffected = tag.RowsAffected()

	case *SQLDBWrapper:
		res, err := e.db.Exec(query, args...)
		assert.NoError(t, err, "error executing raw statement")
		if err == nil {
			rowsAffected, _ = res.RowsAffected()
		}

	case *SQLXWrapper:
		res, err := e.db.Exec(query, args...)
		assert.NoError(t, err, "error executing raw statement")
		if err == nil {
			rowsAffected, _ = res.RowsAffected()
		}

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", e))
	}

	return rowsAffected
}

// CountRows returns the result of a single-column count query on the wrapped connection.
func CountRows(t testing.TB, wrapper Wrapper, query string, args ...any) int {
	var cnt int
	var err error

	switch e := wrapper.(type) {
	case *PGXPoolWrapper:
		row := e.pool.QueryRow(context.Background(), query, args...)
		err = row.Scan(&cnt)

	case *SQLDBWrapper:
		row := e.db.QueryRow(query, args...)
		err = row.Scan(&cnt)

	case *SQLXWrapper:
		row := e.db.QueryRow(query, args...)
		err = row.Scan(&cnt)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", e))
	}

	assert.NoError(t, err, "error counting rows")
	return cnt
}
