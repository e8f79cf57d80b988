package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/huandu/go-sqlbuilder"

	"github.com/gehhilfe/orthrus/store/sqlstore"
)

const errDuplicateEntry = 1062

var Dialect = sqlstore.Dialect{
	Flavor: sqlbuilder.MySQL,
	Schema: func(table, quoted string) []string {
		return []string{
			"CREATE TABLE IF NOT EXISTS " + quoted + ` (
				position BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				aggregate_id VARCHAR(255) NOT NULL,
				aggregate VARCHAR(255) NOT NULL,
				commit_id VARCHAR(64) NOT NULL,
				revision BIGINT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				payload LONGTEXT NOT NULL,
				UNIQUE KEY aggregate_revision (aggregate_id, revision),
				KEY aggregate_position (aggregate, position)
			) DEFAULT CHARSET = utf8mb4`,
		}
	},
	IsUniqueViolation: func(err error) bool {
		return sqlstore.MatchError(err, func(e *mysql.MySQLError) bool {
			return e.Number == errDuplicateEntry
		})
	},
}

type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// MinConns and MaxConns size the connection pool.
	MinConns int
	MaxConns int
}

func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// NewStore connects with opts and prepares the table for the stream.
func NewStore(ctx context.Context, opts Options, table string) (*sqlstore.Store, error) {
	return NewStoreFromDSN(ctx, opts.DSN(), table, opts.MinConns, opts.MaxConns)
}

func NewStoreFromDSN(ctx context.Context, dsn string, table string, minConns, maxConns int) (*sqlstore.Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if minConns > 0 {
		db.SetMaxIdleConns(minConns)
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
