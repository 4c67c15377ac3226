package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect captures what differs between the supported database/sql drivers.
type Dialect struct {
	Driver      string
	schemaFile  string
	dollarBinds bool
	isolation   sql.IsolationLevel
	singleConn  bool
	pragmas     []string
}

var dialects = map[string]Dialect{
	"mysql": {
		Driver:     "mysql",
		schemaFile: "schema/mysql.sql",
		isolation:  sql.LevelReadCommitted,
	},
	"postgres": {
		Driver:      "postgres",
		schemaFile:  "schema/postgres.sql",
		dollarBinds: true,
		isolation:   sql.LevelReadCommitted,
	},
	"pgx": {
		Driver:      "pgx",
		schemaFile:  "schema/postgres.sql",
		dollarBinds: true,
		isolation:   sql.LevelReadCommitted,
	},
	// SQLite allows one writer at a time, so the pool is a single connection.
	"sqlite3": {
		Driver:     "sqlite3",
		schemaFile: "schema/sqlite3.sql",
		singleConn: true,
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		},
	},
}

func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

// Rebind rewrites ? placeholders into $n for drivers that need it.
func (d Dialect) Rebind(query string) string {
	if !d.dollarBinds {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) txOptions() *sql.TxOptions {
	if d.isolation == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: d.isolation}
}

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, sizes the pool and pings the database.
func Open(ctx context.Context, driver, dsn string, opts PoolOptions) (*sql.DB, Dialect, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s: %w", driver, err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", driver, err)
	}

	for _, pragma := range d.pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, Dialect{}, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return db, d, nil
}

// EnsureSchema creates the documents and document_versions tables if missing.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	ddl, err := schemaFS.ReadFile(d.schemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, stmt := range strings.Split(string(ddl), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
