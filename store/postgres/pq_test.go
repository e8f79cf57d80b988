package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gehhilfe/orthrus/core"
	"github.com/gehhilfe/orthrus/internal/adaptertest"
)

func TestPostgresStore(t *testing.T) {
	uri := os.Getenv("ORTHRUS_POSTGRES_URI")
	if uri == "" {
		t.Skip("ORTHRUS_POSTGRES_URI not set")
	}

	adaptertest.Run(t, func(t *testing.T) core.Adapter {
		table := "test-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "-1-0-0"
		s, err := NewStore(context.Background(), uri, table)
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

func TestIsUniqueViolation(t *testing.T) {
	if !Dialect.IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if Dialect.IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("expected a foreign key violation not to match")
	}
	if Dialect.IsUniqueViolation(context.Canceled) {
		t.Error("expected unrelated errors not to match")
	}
}
