package ledgermem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/shopspring/decimal"
)

func TestExecUnderTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	acc := uuid.New()
	c := ledger.Customer{ID: uuid.New(), AccountID: acc, Name: "Ali", Product: "Masa", Balance: decimal.NewFromInt(10)}
	if err := store.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := store.ExecUnderTx(ctx, func(tx ledger.Store) error {
		tr := ledger.Transaction{ID: uuid.New(), CustomerID: c.ID, Kind: ledger.KindDebit, Amount: decimal.NewFromInt(5), DateCreated: time.Now()}
		if err := tx.AddTransaction(ctx, tr); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, c.ID, decimal.NewFromInt(15)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want boom", err)
	}

	got, err := store.QueryCustomerByName(ctx, acc, "Ali")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance should be rolled back, got %s", got.Balance)
	}

	ts, err := store.QueryTransactions(ctx, c.ID)
	if err != nil {
		t.Fatalf("query transactions: %v", err)
	}
	if len(ts) != 0 {
		t.Fatalf("got %d transactions after rollback", len(ts))
	}
}

func TestAddTransactionUnknownCustomer(t *testing.T) {
	store := NewStore()

	tr := ledger.Transaction{ID: uuid.New(), CustomerID: uuid.New(), Kind: ledger.KindDebit, Amount: decimal.NewFromInt(1)}
	if err := store.AddTransaction(context.Background(), tr); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestLatestActivityLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	acc := uuid.New()
	c := ledger.Customer{ID: uuid.New(), AccountID: acc, Name: "Ali", Product: "Masa"}
	if err := store.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		tr := ledger.Transaction{ID: uuid.New(), CustomerID: c.ID, Kind: ledger.KindDebit, Amount: decimal.NewFromInt(int64(i + 1)), DateCreated: start.Add(time.Duration(i) * time.Minute)}
		if err := store.AddTransaction(ctx, tr); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	as, err := store.QueryLatestActivity(ctx, acc, 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(as) != 10 {
		t.Fatalf("got %d want 10", len(as))
	}
	if !as[0].Amount.Equal(decimal.NewFromInt(15)) || as[0].CustomerName != "Ali" {
		t.Fatalf("newest first expected, got %+v", as[0])
	}

	n, err := store.CountTransactionsSince(ctx, acc, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Fatalf("got %d want 5", n)
	}
}
