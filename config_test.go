package orthrus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig(t *testing.T) {
	stream := StreamIdentity{Name: "orders", Version: "1-0-0"}

	for _, tt := range []struct {
		name string
		doc  string
		want Config
	}{
		{
			name: "in-memory",
			doc: `
type: in-memory
stream:
  name: orders
  version: 1-0-0
`,
			want: MemoryConfig{Stream: stream},
		},
		{
			name: "bolt",
			doc: `
type: bolt
stream: {name: orders, version: 1-0-0}
path: /var/lib/orthrus/orders.db
`,
			want: BoltConfig{Stream: stream, Path: "/var/lib/orthrus/orders.db"},
		},
		{
			name: "mysql with defaults",
			doc: `
type: mysql
stream: {name: orders, version: 1-0-0}
host: db.internal
user: orthrus
database: events
`,
			want: MySQLConfig{Stream: stream, Host: "db.internal", Port: 3306, User: "orthrus", Database: "events", MinConns: 1, MaxConns: 10},
		},
		{
			name: "mysql explicit pool",
			doc: `
type: mysql
stream: {name: orders, version: 1-0-0}
host: db.internal
port: 3307
database: events
minConns: 2
maxConns: 4
`,
			want: MySQLConfig{Stream: stream, Host: "db.internal", Port: 3307, Database: "events", MinConns: 2, MaxConns: 4},
		},
		{
			name: "postgres",
			doc: `
type: postgres
stream: {name: orders, version: 1-0-0}
uri: postgres://localhost/events?sslmode=disable
`,
			want: PostgresConfig{Stream: stream, URI: "postgres://localhost/events?sslmode=disable"},
		},
		{
			name: "sqlite",
			doc: `
type: sqlite
stream: {name: orders, version: 1-0-0}
path: ":memory:"
`,
			want: SQLiteConfig{Stream: stream, Path: ":memory:"},
		},
		{
			name: "dynamodb",
			doc: `
type: dynamodb
stream: {name: orders, version: 1-0-0}
region: eu-central-1
endpoint: http://localhost:8000
`,
			want: DynamoConfig{Stream: stream, Region: "eu-central-1", Endpoint: "http://localhost:8000"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			if cfg != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, cfg)
			}
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		doc  string
	}{
		{"missing type", "stream: {name: orders, version: 1.0.0}"},
		{"unknown type", "type: cassandra\nstream: {name: orders, version: 1.0.0}"},
		{"missing stream name", "type: in-memory\nstream: {version: 1.0.0}"},
		{"bad stream name", "type: in-memory\nstream: {name: order-events, version: 1.0.0}"},
		{"bad version", "type: in-memory\nstream: {name: orders, version: latest}"},
		{"bolt without path", "type: bolt\nstream: {name: orders, version: 1.0.0}"},
		{"mysql pool inverted", "type: mysql\nstream: {name: orders, version: 1.0.0}\nhost: h\ndatabase: d\nminConns: 5\nmaxConns: 2"},
		{"postgres without uri", "type: postgres\nstream: {name: orders, version: 1.0.0}"},
		{"dynamodb without region", "type: dynamodb\nstream: {name: orders, version: 1.0.0}"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.doc)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := ParseConfig([]byte("type: [")); err == nil {
		t.Fatal("expected a yaml error")
	}
}

func TestStreamIdentity(t *testing.T) {
	s := StreamIdentity{Name: "orders", Version: "2-1-0"}
	v, err := s.SemVer()
	if err != nil {
		t.Fatal(err)
	}
	if v.Major() != 2 || v.Minor() != 1 || v.Patch() != 0 {
		t.Errorf("unexpected version %s", v)
	}
	if s.TableName() != "orders-2-1-0" {
		t.Errorf("unexpected table name %q", s.TableName())
	}

	pre := StreamIdentity{Name: "orders", Version: "1.0.0-beta.1"}
	if v, err := pre.SemVer(); err != nil || v.Prerelease() != "beta.1" {
		t.Errorf("expected a prerelease version, got %v (%v)", v, err)
	}

	d := DynamoConfig{Stream: s}
	if d.TableName() != "orders-2-1-0" {
		t.Errorf("expected the stream table name, got %q", d.TableName())
	}
	d.Table = "events"
	if d.TableName() != "events" {
		t.Errorf("expected the explicit table name, got %q", d.TableName())
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orthrus.yaml")
	doc := "type: sqlite\nstream: {name: orders, version: 1.0.0}\npath: orders.db\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := cfg.(SQLiteConfig); !ok || c.Path != "orders.db" {
		t.Fatalf("unexpected config %#v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected a read error")
	}
}

func TestOpen(t *testing.T) {
	stream := StreamIdentity{Name: "orders", Version: "1.0.0"}
	dir := t.TempDir()

	for _, cfg := range []Config{
		MemoryConfig{Stream: stream},
		SQLiteConfig{Stream: stream, Path: filepath.Join(dir, "orders.sqlite")},
		BoltConfig{Stream: stream, Path: filepath.Join(dir, "orders.bolt")},
	} {
		t.Run(cfg.backend(), func(t *testing.T) {
			ctx := context.Background()
			store, err := Open(ctx, cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer store.Destroy(ctx)

			if store.Stream() != stream {
				t.Fatalf("unexpected stream %v", store.Stream())
			}
			if err := store.SaveEvent(ctx, NewEvent{AggregateID: "order-1", Aggregate: "order", Revision: 1, Payload: "{}"}); err != nil {
				t.Fatal(err)
			}
			last, found, err := store.GetLastEvent(ctx, "order-1")
			if err != nil || !found {
				t.Fatalf("expected the event back, got %v (%v)", found, err)
			}
			if last.Position != 1 || last.StreamName != "orders" {
				t.Fatalf("unexpected event %+v", last)
			}
		})
	}

	if _, err := Open(context.Background(), BoltConfig{Stream: stream}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
