package orthrus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/store/bolt"
	"github.com/gehhilfe/orthrus/store/dynamo"
	"github.com/gehhilfe/orthrus/store/memory"
	"github.com/gehhilfe/orthrus/store/mysql"
	"github.com/gehhilfe/orthrus/store/postgres"
	"github.com/gehhilfe/orthrus/store/sqlite"
)

// Open builds the adapter cfg describes and returns a store on top of it.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adapter, err := openAdapter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.backend(), err)
	}

	s := New(adapter, cfg.StreamIdentity(), opts...)
	s.logger.Info("store opened", slog.String("backend", cfg.backend()))
	return s, nil
}

func openAdapter(ctx context.Context, cfg Config) (core.Adapter, error) {
	table := cfg.StreamIdentity().TableName()

	switch c := cfg.(type) {
	case MemoryConfig:
		return memory.NewInMemoryStore(), nil
	case BoltConfig:
		return bolt.NewBoltStore(c.Path)
	case MySQLConfig:
		c = c.WithDefaults()
		return mysql.NewStore(ctx, mysql.Options{
			Host:     c.Host,
			Port:     c.Port,
			User:     c.User,
			Password: c.Password,
			Database: c.Database,
			MinConns: c.MinConns,
			MaxConns: c.MaxConns,
		}, table)
	case PostgresConfig:
		return postgres.NewStore(ctx, c.URI, table)
	case SQLiteConfig:
		return sqlite.NewStore(ctx, c.Path, table)
	case DynamoConfig:
		svc, err := dynamo.NewClient(ctx, dynamo.ClientOptions{
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return dynamo.NewStore(ctx, svc, c.TableName())
	}
	return nil, fmt.Errorf("%w: unsupported config %T", ErrInvalidConfig, cfg)
}
