package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/rschio/paytrack/internal/core/ledger/store/ledgermem"
	"github.com/rschio/paytrack/internal/data/lock"
	"github.com/shopspring/decimal"
)

func newCore(t *testing.T, opts ...ledger.Option) *ledger.Core {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ledger.NewCore(log, ledgermem.NewStore(), lock.NewLocal(), opts...)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	c, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ayşe", Product: "Laptop", InitialBalance: dec("1000")})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if !c.Balance.Equal(dec("1000")) {
		t.Fatalf("got balance %s want 1000", c.Balance)
	}

	c, err = core.RecordTransaction(ctx, acc, "Ayşe", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("200")})
	if err != nil {
		t.Fatalf("record debit: %v", err)
	}
	if !c.Balance.Equal(dec("1200")) {
		t.Fatalf("got balance %s want 1200", c.Balance)
	}

	c, err = core.RecordTransaction(ctx, acc, "Ayşe", ledger.NewTransaction{Kind: ledger.KindCredit, Amount: dec("300"), Description: "nakit"})
	if err != nil {
		t.Fatalf("record credit: %v", err)
	}
	if !c.Balance.Equal(dec("900")) {
		t.Fatalf("got balance %s want 900", c.Balance)
	}

	ts, err := core.ListTransactions(ctx, acc, "Ayşe")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}

	type row struct {
		Kind        ledger.Kind
		Amount      string
		Description string
	}
	got := make([]row, len(ts))
	for i, tr := range ts {
		got[i] = row{tr.Kind, tr.Amount.String(), tr.Description}
	}
	want := []row{
		{ledger.KindDebit, "200", ""},
		{ledger.KindCredit, "300", "nakit"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrong transactions (-want +got):\n%s", diff)
	}

	sum, err := core.DashboardSummary(ctx, acc)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if sum.TotalCustomers != 1 || !sum.TotalDebt.Equal(dec("900")) || sum.RecentTransactions != 2 {
		t.Fatalf("got summary {%d %s %d} want {1 900 2}", sum.TotalCustomers, sum.TotalDebt, sum.RecentTransactions)
	}
	if len(sum.Latest) != 2 || sum.Latest[0].Kind != ledger.KindCredit || sum.Latest[0].CustomerName != "Ayşe" {
		t.Fatalf("latest activity should start with the credit, got %+v", sum.Latest)
	}

	if err := core.VerifyBalance(ctx, acc, "Ayşe"); err != nil {
		t.Fatalf("verify balance: %v", err)
	}
}

func TestAdjustmentDecreasesBalance(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Mehmet", Product: "Telefon", InitialBalance: dec("500")}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	c, err := core.RecordTransaction(ctx, acc, "Mehmet", ledger.NewTransaction{Kind: ledger.KindAdjustment, Amount: dec("120.50")})
	if err != nil {
		t.Fatalf("record adjustment: %v", err)
	}
	if !c.Balance.Equal(dec("379.50")) {
		t.Fatalf("got balance %s want 379.50", c.Balance)
	}
}

func TestRecordTransactionUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Masa", InitialBalance: dec("10")}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	_, err := core.RecordTransaction(ctx, acc, "Veli", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("5")})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}

	// A customer of another account is invisible.
	_, err = core.RecordTransaction(ctx, uuid.New(), "Ali", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("5")})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound for other account", err)
	}

	c, err := core.QueryCustomer(ctx, acc, "Ali")
	if err != nil {
		t.Fatalf("query customer: %v", err)
	}
	if !c.Balance.Equal(dec("10")) {
		t.Fatalf("store changed: balance %s", c.Balance)
	}
}

func TestRecordTransactionInvalidInput(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Masa"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	tests := []struct {
		name string
		nt   ledger.NewTransaction
	}{
		{"zero amount", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: decimal.Zero}},
		{"negative amount", ledger.NewTransaction{Kind: ledger.KindCredit, Amount: dec("-1")}},
		{"rounds to zero", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("0.004")}},
		{"unknown kind", ledger.NewTransaction{Kind: "gift", Amount: dec("1")}},
		{"long description", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("1"), Description: string(make([]rune, 201))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.RecordTransaction(ctx, acc, "Ali", tt.nt)
			if !errors.Is(err, ledger.ErrInvalidInput) {
				t.Fatalf("got %v want ErrInvalidInput", err)
			}
		})
	}

	ts, err := core.ListTransactions(ctx, acc, "Ali")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(ts) != 0 {
		t.Fatalf("got %d transactions, want none", len(ts))
	}
}

func TestCreateCustomer(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	first, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: " Ayşe ", Product: "Laptop", InitialBalance: dec("1000.005")})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if first.Name != "Ayşe" {
		t.Errorf("name should be trimmed, got %q", first.Name)
	}
	if !first.Balance.Equal(dec("1000.01")) {
		t.Errorf("balance should round to two places, got %s", first.Balance)
	}

	_, err = core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ayşe", Product: "Telefon", InitialBalance: dec("1")})
	if !errors.Is(err, ledger.ErrDuplicateName) {
		t.Fatalf("got %v want ErrDuplicateName", err)
	}

	got, err := core.QueryCustomer(ctx, acc, "Ayşe")
	if err != nil {
		t.Fatalf("query customer: %v", err)
	}
	if diff := cmp.Diff(first, got); diff != "" {
		t.Fatalf("first customer changed (-want +got):\n%s", diff)
	}

	// Same name on another account is fine.
	if _, err := core.CreateCustomer(ctx, uuid.New(), ledger.NewCustomer{Name: "Ayşe", Product: "Laptop"}); err != nil {
		t.Fatalf("create on other account: %v", err)
	}

	for _, nc := range []ledger.NewCustomer{
		{Name: "", Product: "x"},
		{Name: "x", Product: "   "},
		{Name: string(make([]rune, 101)), Product: "x"},
	} {
		if _, err := core.CreateCustomer(ctx, acc, nc); !errors.Is(err, ledger.ErrInvalidInput) {
			t.Errorf("create %+v: got %v want ErrInvalidInput", nc, err)
		}
	}
}

func TestDeleteCustomer(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Masa", InitialBalance: dec("10")}); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := core.RecordTransaction(ctx, acc, "Ali", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("5")}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := core.DeleteCustomer(ctx, acc, "Ali"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := core.ListTransactions(ctx, acc, "Ali"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("list after delete: got %v want ErrNotFound", err)
	}
	if err := core.DeleteCustomer(ctx, acc, "Ali"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("second delete: got %v want ErrNotFound", err)
	}

	// The name is free again and starts with an empty history.
	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Sandalye"}); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	ts, err := core.ListTransactions(ctx, acc, "Ali")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ts) != 0 {
		t.Fatalf("got %d transactions on recreated customer", len(ts))
	}
}

func TestListCustomersReflectsSurvivors(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	cs, err := core.ListCustomers(ctx, acc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if cs == nil || len(cs) != 0 {
		t.Fatalf("want empty non nil slice, got %#v", cs)
	}

	for _, name := range []string{"a", "b", "c", "d"} {
		if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: name, Product: "p"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	for _, name := range []string{"b", "d"} {
		if err := core.DeleteCustomer(ctx, acc, name); err != nil {
			t.Fatalf("delete %s: %v", name, err)
		}
	}
	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "e", Product: "p"}); err != nil {
		t.Fatalf("create e: %v", err)
	}

	cs, err = core.ListCustomers(ctx, acc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, c := range cs {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"a", "c", "e"}, names); diff != "" {
		t.Fatalf("wrong customers (-want +got):\n%s", diff)
	}
}

func TestBalanceMatchesReplay(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Zeynep", Product: "Buzdolabı", InitialBalance: dec("-25.10")}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	kinds := []ledger.Kind{ledger.KindDebit, ledger.KindCredit, ledger.KindAdjustment}
	for i := 0; i < 60; i++ {
		nt := ledger.NewTransaction{
			Kind:   kinds[i%len(kinds)],
			Amount: decimal.New(int64(i*37%1000+1), -2),
		}
		if _, err := core.RecordTransaction(ctx, acc, "Zeynep", nt); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	st, err := core.Statement(ctx, acc, "Zeynep")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if got := ledger.Replay(st.Customer.InitialBalance, st.Transactions); !got.Equal(st.Customer.Balance) {
		t.Fatalf("replayed %s stored %s", got, st.Customer.Balance)
	}
}

func TestConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Can", Product: "Bisiklet"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := ledger.KindDebit
			if i%2 == 1 {
				kind = ledger.KindCredit
			}
			if _, err := core.RecordTransaction(ctx, acc, "Can", ledger.NewTransaction{Kind: kind, Amount: dec("3")}); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	c, err := core.QueryCustomer(ctx, acc, "Can")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !c.Balance.IsZero() {
		t.Fatalf("got balance %s want 0", c.Balance)
	}
	if err := core.VerifyBalance(ctx, acc, "Can"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDashboardRecentWindow(t *testing.T) {
	ctx := context.Background()
	acc := uuid.New()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	core := newCore(t, ledger.WithClock(clock), ledger.WithRecentWindow(24*time.Hour))

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "p", InitialBalance: dec("10")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Veli", Product: "p", InitialBalance: dec("-40")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := core.RecordTransaction(ctx, acc, "Ali", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("1")}); err != nil {
		t.Fatalf("record: %v", err)
	}

	now = now.Add(48 * time.Hour)
	if _, err := core.RecordTransaction(ctx, acc, "Ali", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("1")}); err != nil {
		t.Fatalf("record: %v", err)
	}

	sum, err := core.DashboardSummary(ctx, acc)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if sum.RecentTransactions != 1 {
		t.Errorf("got %d recent transactions want 1", sum.RecentTransactions)
	}
	if sum.TotalCustomers != 2 {
		t.Errorf("got %d customers want 2", sum.TotalCustomers)
	}
	if !sum.TotalDebt.Equal(dec("12")) {
		t.Errorf("negative balances must not reduce debt, got %s", sum.TotalDebt)
	}
}

func TestAmountRange(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	acc := uuid.New()

	_, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Araba", InitialBalance: dec("1e20")})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("huge initial balance: got %v want ErrInvalidInput", err)
	}
	_, err = core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ali", Product: "Araba", InitialBalance: dec("-1000000000000")})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("huge negative initial balance: got %v want ErrInvalidInput", err)
	}

	if _, err := core.CreateCustomer(ctx, acc, ledger.NewCustomer{Name: "Ayşe", Product: "Laptop", InitialBalance: dec("999999999000")}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	_, err = core.RecordTransaction(ctx, acc, "Ayşe", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("1e15")})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("huge amount: got %v want ErrInvalidInput", err)
	}

	_, err = core.RecordTransaction(ctx, acc, "Ayşe", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("1000")})
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("balance overflow: got %v want ErrInvalidInput", err)
	}

	c, err := core.RecordTransaction(ctx, acc, "Ayşe", ledger.NewTransaction{Kind: ledger.KindDebit, Amount: dec("999.99")})
	if err != nil {
		t.Fatalf("debit up to the limit: %v", err)
	}
	if !c.Balance.Equal(dec("999999999999.99")) {
		t.Fatalf("got balance %s want 999999999999.99", c.Balance)
	}

	ts, err := core.ListTransactions(ctx, acc, "Ayşe")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(ts) != 1 {
		t.Fatalf("rejected transactions must not be stored, got %d", len(ts))
	}
	if err := core.VerifyBalance(ctx, acc, "Ayşe"); err != nil {
		t.Fatalf("verify balance: %v", err)
	}
}
