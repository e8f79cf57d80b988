package mysql

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
)

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("ORTHRUS_MYSQL_DSN")
	if dsn == "" {
		t.Skip("ORTHRUS_MYSQL_DSN not set")
	}

	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		table := "test-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "-1-0-0"
		s, err := NewStoreFromDSN(context.Background(), dsn, table, 1, 10)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := s.Drop(context.Background()); err != nil {
				t.Error(err)
			}
		})
		return s
	})
}

func TestOptionsDSN(t *testing.T) {
	dsn := Options{
		Host:     "db.internal",
		Port:     3306,
		User:     "orthrus",
		Password: "secret",
		Database: "events",
	}.DSN()

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "db.internal:3306" || cfg.User != "orthrus" || cfg.Passwd != "secret" || cfg.DBName != "events" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.ParseTime {
		t.Error("expected parseTime to be enabled")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !Dialect.IsUniqueViolation(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Error("expected 1062 to be a unique violation")
	}
	if Dialect.IsUniqueViolation(&mysql.MySQLError{Number: 1146}) {
		t.Error("expected a missing table not to match")
	}
}
