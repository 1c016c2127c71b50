package dbtest

import (
	"context"
	"testing"

	db "github.com/rschio/paytrack/internal/data/dbsql/pgx"
)

func TestNewUnit(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := NewUnit(t, WithMigrations(), WithSeed())
	t.Cleanup(teardown)
	log.Info("Hello")

	if err := db.StatusCheck(ctx, database); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := database.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&n); err != nil {
		t.Fatalf("counting seeded customers: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d seeded customers, want 1", n)
	}
}
