package accountdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/account"
	"github.com/rschio/paytrack/internal/data/dbtest"
)

// Seeded by dbschema.
var demoAccount = uuid.MustParse("5cf37266-3473-4006-984f-9325122678b7")

func TestStore(t *testing.T) {
	ctx := context.Background()
	log, database, teardown := dbtest.NewUnit(t, dbtest.WithMigrations(), dbtest.WithSeed())
	t.Cleanup(teardown)

	store := NewStore(log, database)

	demo, err := store.QueryByUsername(ctx, "demo")
	if err != nil {
		t.Fatalf("query seeded account: %v", err)
	}
	if demo.ID != demoAccount {
		t.Errorf("got id %s want %s", demo.ID, demoAccount)
	}
	if demo.PasswordHash != nil {
		t.Errorf("seeded account should have no password, got %q", demo.PasswordHash)
	}

	want := account.Account{
		ID:           uuid.New(),
		Username:     "mehmet",
		PasswordHash: []byte("$2a$04$hash"),
		DateCreated:  time.Now().UTC().Round(time.Microsecond),
	}
	if err := store.Create(ctx, want); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.QueryByID(ctx, want.ID)
	if err != nil {
		t.Fatalf("query by id: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("account mismatch (-want +got):\n%s", diff)
	}

	dup := want
	dup.ID = uuid.New()
	if err := store.Create(ctx, dup); !errors.Is(err, account.ErrDuplicateUsername) {
		t.Errorf("got %v want ErrDuplicateUsername", err)
	}

	if _, err := store.QueryByUsername(ctx, "zeynep"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("got %v want ErrNotFound", err)
	}
}
