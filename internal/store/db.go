package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL backend behind a DB
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is an open catalog database together with the dialect it speaks
type DB struct {
	*sql.DB
	Dialect Dialect
	// Path is the database file for SQLite backends, empty for PostgreSQL
	// and in-memory databases
	Path string
}

// sqlitePragmas are applied to every pooled connection so cascades work
// regardless of which connection a statement lands on
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(10000)",
}

// NewDB opens the catalog database named by dsn.
//
// postgres:// and postgresql:// DSNs use PostgreSQL. Anything else is an
// SQLite database: a plain file path, sqlite://path or a file: URI. Query
// parameters such as mode=ro are passed through to SQLite.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &DB{DB: db, Dialect: DialectPostgres}, nil
	}

	path, params, err := parseSQLiteDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, params))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	memory := isMemory(path, params)
	if memory {
		// every new connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite %s: %w", path, err)
	}
	if memory {
		path = ""
	}

	return &DB{DB: db, Dialect: DialectSQLite, Path: path}, nil
}

// parseSQLiteDSN splits a plain path, sqlite://path or file: URI into the
// database path and the caller's query parameters
func parseSQLiteDSN(dsn string) (string, url.Values, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	path = strings.TrimPrefix(path, "file:")

	params := url.Values{}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		var err error
		params, err = url.ParseQuery(path[i+1:])
		if err != nil {
			return "", nil, fmt.Errorf("invalid sqlite DSN parameters %q: %w", path[i+1:], err)
		}
		path = path[:i]
	}
	if path == "" {
		return "", nil, fmt.Errorf("sqlite DSN %q names no database", dsn)
	}
	return path, params, nil
}

func isMemory(path string, params url.Values) bool {
	return path == ":memory:" || params.Get("mode") == "memory"
}

// sqliteDSN adds the connection pragmas to the caller's parameters. A
// pragma the caller already set wins, and read-only databases skip the
// ones that would write.
func sqliteDSN(path string, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}

	readOnly := params.Get("mode") == "ro" || params.Get("immutable") == "1"
	for _, p := range sqlitePragmas {
		name := p[:strings.IndexByte(p, '(')]
		if readOnly && writePragmas[name] {
			continue
		}
		if hasPragma(params, name) {
			continue
		}
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

var writePragmas = map[string]bool{"journal_mode": true, "synchronous": true}

func hasPragma(params url.Values, name string) bool {
	for _, p := range params["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return true
		}
	}
	return false
}

// X returns an sqlx view of the same connection pool for struct scanning
func (d *DB) X() *sqlx.DB {
	return sqlx.NewDb(d.DB, string(d.Dialect))
}

// Size returns the size in bytes of the database file. Only SQLite
// databases have one; PostgreSQL reports the size of the current database.
func (d *DB) Size(ctx context.Context) (int64, error) {
	if d.Dialect == DialectPostgres {
		var size int64
		err := d.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&size)
		if err != nil {
			return 0, fmt.Errorf("failed to get database size: %w", err)
		}
		return size, nil
	}

	if d.Path == "" {
		var size int64
		err := d.QueryRowContext(ctx,
			"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size)
		if err != nil {
			return 0, fmt.Errorf("failed to get database size: %w", err)
		}
		return size, nil
	}

	info, err := os.Stat(d.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

// Exists reports whether the catalog already holds an agencies table
func (d *DB) Exists(ctx context.Context) (bool, error) {
	var query string
	switch d.Dialect {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'agencies'`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'agencies'`
	}

	var n int
	if err := d.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}
