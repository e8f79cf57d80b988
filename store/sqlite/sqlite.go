package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/gehhilfe/orthrus/store/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Flavor: sqlbuilder.SQLite,
	Schema: func(table, quoted string) []string {
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + quoted + ` (
				position INTEGER PRIMARY KEY AUTOINCREMENT,
				aggregate_id TEXT NOT NULL,
				aggregate TEXT NOT NULL,
				commit_id TEXT NOT NULL,
				revision INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				payload TEXT NOT NULL,
				UNIQUE (aggregate_id, revision)
			);`,
			`CREATE INDEX IF NOT EXISTS ` + sqlbuilder.SQLite.Quote(table+"_aggregate_idx") + ` ON ` + quoted + ` (aggregate, position);`,
		}
	},
	IsUniqueViolation: func(err error) bool {
		if sqlstore.MatchError(err, func(e *sqlite.Error) bool {
			return e.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || e.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		}) {
			return true
		}
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// NewStore opens the database file at path (":memory:" for a private
// in-process database) and prepares the table for the stream.
func NewStore(ctx context.Context, path string, table string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps ":memory:" alive
	db.SetMaxOpenConns(1)

	s, err := sqlstore.New(ctx, db, table, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
