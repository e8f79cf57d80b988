package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/gehhilfe/orthrus/store/sqlstore"
)

const uniqueViolation = pq.ErrorCode("23505")

var Dialect = sqlstore.Dialect{
	Flavor: sqlbuilder.PostgreSQL,
	Schema: func(table, quoted string) []string {
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + quoted + ` (
				position BIGSERIAL PRIMARY KEY,
				aggregate_id TEXT NOT NULL,
				aggregate TEXT NOT NULL,
				commit_id TEXT NOT NULL,
				revision BIGINT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				payload TEXT NOT NULL,
				UNIQUE (aggregate_id, revision)
			);`,
			`CREATE INDEX IF NOT EXISTS ` + sqlbuilder.PostgreSQL.Quote(table+"_aggregate_idx") + ` ON ` + quoted + ` (aggregate, position);`,
			// the log is append only
			`CREATE OR REPLACE FUNCTION orthrus_reject_rewrite()
			RETURNS TRIGGER AS $$
			BEGIN
				RAISE EXCEPTION 'events are append only';
			END;
			$$ LANGUAGE plpgsql;`,
			`CREATE OR REPLACE TRIGGER ` + sqlbuilder.PostgreSQL.Quote(table+"_append_only") + `
			BEFORE DELETE OR UPDATE ON ` + quoted + `
			FOR EACH STATEMENT
			EXECUTE FUNCTION orthrus_reject_rewrite();`,
		}
	},
	IsUniqueViolation: func(err error) bool {
		return sqlstore.MatchError(err, func(e *pq.Error) bool {
			return e.Code == uniqueViolation
		})
	},
}

// NewStore connects to uri and prepares the table for the stream.
func NewStore(ctx context.Context, uri string, table string) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s, err := sqlstore.New(ctx, db, table, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
