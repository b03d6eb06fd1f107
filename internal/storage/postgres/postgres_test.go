package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/FranksOps/linkscout/internal/storage/storagetest"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if LINKSCOUT_TEST_PG_DSN is set
	dsn := os.Getenv("LINKSCOUT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: LINKSCOUT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	pb := b.(*postgresBackend)
	if _, err := pb.pool.Exec(ctx, `TRUNCATE contact_records`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	storagetest.Run(t, b)
}
