// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, cross-compiles
// anywhere Go does. Use ":memory:" for throwaway test databases.
//
// CONNECTION SETTINGS:
// PRAGMAs such as foreign_keys are per-connection in SQLite, and database/sql
// hands out many connections. Running "PRAGMA foreign_keys=ON" once would only
// configure whichever connection happened to serve it. Instead we pass the
// pragmas in the DSN (_pragma=...) so the driver applies them to every new
// connection it opens.
//
// SCHEMA:
// Tables are created by golang-migrate from the SQL files in migrations/,
// which are embedded into the binary. Each migration runs once and is recorded
// in schema_migrations.
package sqlite

import (
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"golang.org/x/text/cases"

	// Registers the "sqlite" database/sql driver.
	sqlitedrv "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const memoryPath = ":memory:"

// foldFunc is the SQL name of the Unicode case-folding function. SQLite's
// own LIKE and lower() only fold ASCII letters.
const foldFunc = "fold"

func init() {
	// Registered on the driver, so every connection opened later has it.
	if err := sqlitedrv.RegisterDeterministicScalarFunction(foldFunc, 1, fold); err != nil {
		panic(fmt.Sprintf("sqlite: registering %s(): %v", foldFunc, err))
	}
}

// fold implements fold(text). NULL stays NULL.
func fold(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return foldString(v), nil
	case []byte:
		return foldString(string(v)), nil
	default:
		return nil, fmt.Errorf("%s(): unsupported argument type %T", foldFunc, v)
	}
}

// foldString applies full Unicode case folding. A Caser keeps state, so
// each call gets its own.
func foldString(s string) string {
	return cases.Fold().String(s)
}

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and migrates it to the
// latest schema version.
//
//   - "data/explorer.db" → file-based database (persistent, WAL mode)
//   - ":memory:"         → in-memory database (tests; lost on Close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a brand new, empty database.
	// Pinning the pool to a single connection keeps one shared database.
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// dsn builds the driver connection string for dbPath.
//
//   - foreign_keys(1): friends rows must point at real users rows
//   - busy_timeout(5000): wait up to 5s for a competing writer instead of failing
//   - journal_mode(WAL): readers don't block the writer (file databases only)
//   - _time_format=sqlite: write times as "YYYY-MM-DD HH:MM:SS.fff+00:00"
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if dbPath != memoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_time_format", "sqlite")
	return dbPath + "?" + q.Encode()
}

// Migrate applies every pending migration. It is safe to call repeatedly.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: preparing migration driver: %w", err)
	}

	// NOTE: we never call m.Close(). It would close the database driver, and
	// with it our shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: preparing migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func (db *DB) Version() (uint, error) {
	var version uint
	err := db.conn.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return version, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
