// Package ledger keeps customers and their transaction logs for an account
// and makes sure balances agree with the history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/web"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Set of errors for ledger API.
var (
	ErrNotFound        = errors.New("customer not found")
	ErrDuplicateName   = errors.New("customer already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrBalanceMismatch = errors.New("balance does not match transaction history")
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 200
	latestLimit       = 10
	amountPlaces      = 2
)

// maxAmount is the largest magnitude a balance or amount may take. It is
// what a NUMERIC(14,2) column holds.
var maxAmount = decimal.RequireFromString("999999999999.99")

// Store is used to persist the ledger.
type Store interface {
	// ExecUnderTx executes the fn function under a transaction. If fn returns
	// an error the transaction is rolled back and the error is returned.
	ExecUnderTx(ctx context.Context, fn func(tx Store) error) error

	CreateCustomer(ctx context.Context, c Customer) error
	QueryCustomers(ctx context.Context, accountID uuid.UUID) ([]Customer, error)
	QueryCustomerByName(ctx context.Context, accountID uuid.UUID, name string) (Customer, error)
	// QueryCustomerForUpdate works as QueryCustomerByName and holds the row
	// until the surrounding transaction ends.
	QueryCustomerForUpdate(ctx context.Context, accountID uuid.UUID, name string) (Customer, error)
	UpdateBalance(ctx context.Context, customerID uuid.UUID, balance decimal.Decimal) error
	DeleteCustomer(ctx context.Context, accountID uuid.UUID, name string) error

	AddTransaction(ctx context.Context, t Transaction) error
	QueryTransactions(ctx context.Context, customerID uuid.UUID) ([]Transaction, error)
	CountTransactionsSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error)
	QueryLatestActivity(ctx context.Context, accountID uuid.UUID, limit int) ([]Activity, error)
}

// Locker serializes work on a key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Option configures a Core.
type Option func(*Core)

// WithRecentWindow sets how far back the dashboard counts transactions. Zero
// counts every transaction.
func WithRecentWindow(d time.Duration) Option {
	return func(c *Core) { c.recentWindow = d }
}

// WithClock replaces the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// Core deals with the ledger business logic.
type Core struct {
	log          *slog.Logger
	store        Store
	locker       Locker
	recentWindow time.Duration
	now          func() time.Time
}

func NewCore(log *slog.Logger, store Store, locker Locker, opts ...Option) *Core {
	c := Core{
		log:    log,
		store:  store,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// CreateCustomer adds a customer to the account with its opening balance.
func (c *Core) CreateCustomer(ctx context.Context, accountID uuid.UUID, nc NewCustomer) (Customer, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.CreateCustomer")
	defer span.End()

	name, err := cleanText("name", nc.Name, maxNameLen, true)
	if err != nil {
		return Customer{}, err
	}
	product, err := cleanText("product", nc.Product, maxNameLen, true)
	if err != nil {
		return Customer{}, err
	}

	initial := nc.InitialBalance.Round(amountPlaces)
	if err := checkRange("initial balance", initial); err != nil {
		return Customer{}, err
	}

	cus := Customer{
		ID:             uuid.New(),
		AccountID:      accountID,
		Name:           name,
		Product:        product,
		InitialBalance: initial,
		Balance:        initial,
		DateCreated:    c.now().Round(time.Microsecond),
	}

	if err := c.store.CreateCustomer(ctx, cus); err != nil {
		return Customer{}, fmt.Errorf("create customer[%s]: %w", name, err)
	}

	return cus, nil
}

// ListCustomers returns the customers of the account in insertion order.
func (c *Core) ListCustomers(ctx context.Context, accountID uuid.UUID) ([]Customer, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.ListCustomers")
	defer span.End()

	cs, err := c.store.QueryCustomers(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}

	return cs, nil
}

// QueryCustomer returns a single customer by name.
func (c *Core) QueryCustomer(ctx context.Context, accountID uuid.UUID, name string) (Customer, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.QueryCustomer")
	defer span.End()

	cus, err := c.store.QueryCustomerByName(ctx, accountID, strings.TrimSpace(name))
	if err != nil {
		return Customer{}, fmt.Errorf("query customer[%s]: %w", name, err)
	}

	return cus, nil
}

// DeleteCustomer removes the customer and all of its transactions.
func (c *Core) DeleteCustomer(ctx context.Context, accountID uuid.UUID, name string) error {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.DeleteCustomer")
	defer span.End()

	name = strings.TrimSpace(name)

	unlock, err := c.locker.Lock(ctx, lockKey(accountID, name))
	if err != nil {
		return fmt.Errorf("lock customer[%s]: %w", name, err)
	}
	defer unlock()

	if err := c.store.DeleteCustomer(ctx, accountID, name); err != nil {
		return fmt.Errorf("delete customer[%s]: %w", name, err)
	}

	return nil
}

// RecordTransaction appends a transaction to the customer's log and moves
// the balance in the same store transaction. It returns the updated
// customer.
func (c *Core) RecordTransaction(ctx context.Context, accountID uuid.UUID, name string, nt NewTransaction) (Customer, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.RecordTransaction",
		attribute.String("kind", string(nt.Kind)))
	defer span.End()

	name = strings.TrimSpace(name)

	if !nt.Kind.valid() {
		return Customer{}, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidInput, nt.Kind)
	}
	amount := nt.Amount.Round(amountPlaces)
	if !amount.IsPositive() {
		return Customer{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if err := checkRange("amount", amount); err != nil {
		return Customer{}, err
	}
	desc, err := cleanText("description", nt.Description, maxDescriptionLen, false)
	if err != nil {
		return Customer{}, err
	}

	unlock, err := c.locker.Lock(ctx, lockKey(accountID, name))
	if err != nil {
		return Customer{}, fmt.Errorf("lock customer[%s]: %w", name, err)
	}
	defer unlock()

	var updated Customer
	fn := func(tx Store) error {
		cus, err := tx.QueryCustomerForUpdate(ctx, accountID, name)
		if err != nil {
			return err
		}

		balance := nt.Kind.Apply(cus.Balance, amount)
		if err := checkRange("balance", balance); err != nil {
			return err
		}

		t := Transaction{
			ID:          uuid.New(),
			CustomerID:  cus.ID,
			Kind:        nt.Kind,
			Amount:      amount,
			Description: desc,
			DateCreated: c.now().Round(time.Microsecond),
		}
		if err := tx.AddTransaction(ctx, t); err != nil {
			return fmt.Errorf("add transaction: %w", err)
		}

		cus.Balance = balance
		if err := tx.UpdateBalance(ctx, cus.ID, cus.Balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		updated = cus
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Customer{}, fmt.Errorf("record %s for customer[%s]: %w", nt.Kind, name, err)
	}

	c.log.InfoContext(ctx, "transaction recorded", "customer", updated.ID, "kind", nt.Kind, "amount", amount.String())

	return updated, nil
}

// ListTransactions returns the customer's log in creation order.
func (c *Core) ListTransactions(ctx context.Context, accountID uuid.UUID, name string) ([]Transaction, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.ListTransactions")
	defer span.End()

	st, err := c.Statement(ctx, accountID, name)
	if err != nil {
		return nil, err
	}

	return st.Transactions, nil
}

// Statement reads a customer and its history as one consistent snapshot.
func (c *Core) Statement(ctx context.Context, accountID uuid.UUID, name string) (Statement, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.Statement")
	defer span.End()

	name = strings.TrimSpace(name)

	var st Statement
	fn := func(tx Store) error {
		cus, err := tx.QueryCustomerByName(ctx, accountID, name)
		if err != nil {
			return err
		}

		ts, err := tx.QueryTransactions(ctx, cus.ID)
		if err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}

		st = Statement{Customer: cus, Transactions: ts}
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Statement{}, fmt.Errorf("statement for customer[%s]: %w", name, err)
	}

	return st, nil
}

// DashboardSummary aggregates the account's ledger. Only positive balances
// count towards the total debt.
func (c *Core) DashboardSummary(ctx context.Context, accountID uuid.UUID) (Summary, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.ledger.DashboardSummary")
	defer span.End()

	var since time.Time
	if c.recentWindow > 0 {
		since = c.now().Add(-c.recentWindow)
	}

	var sum Summary
	fn := func(tx Store) error {
		cs, err := tx.QueryCustomers(ctx, accountID)
		if err != nil {
			return fmt.Errorf("query customers: %w", err)
		}

		n, err := tx.CountTransactionsSince(ctx, accountID, since)
		if err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}

		latest, err := tx.QueryLatestActivity(ctx, accountID, latestLimit)
		if err != nil {
			return fmt.Errorf("query latest activity: %w", err)
		}

		sum = Summary{
			TotalCustomers:     len(cs),
			TotalDebt:          totalDebt(cs),
			RecentTransactions: n,
			Latest:             latest,
		}
		return nil
	}

	if err := c.store.ExecUnderTx(ctx, fn); err != nil {
		return Summary{}, fmt.Errorf("dashboard summary: %w", err)
	}

	return sum, nil
}

// VerifyBalance replays the customer's log and compares it with the stored
// balance.
func (c *Core) VerifyBalance(ctx context.Context, accountID uuid.UUID, name string) error {
	st, err := c.Statement(ctx, accountID, name)
	if err != nil {
		return err
	}

	want := Replay(st.Customer.InitialBalance, st.Transactions)
	if !want.Equal(st.Customer.Balance) {
		return fmt.Errorf("%w: customer[%s] stored %s replayed %s",
			ErrBalanceMismatch, name, st.Customer.Balance, want)
	}

	return nil
}

// Replay computes the balance that follows from an opening balance and a
// transaction log.
func Replay(initial decimal.Decimal, ts []Transaction) decimal.Decimal {
	b := initial
	for _, t := range ts {
		b = t.Kind.Apply(b, t.Amount)
	}
	return b
}

func totalDebt(cs []Customer) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		if c.Balance.IsPositive() {
			total = total.Add(c.Balance)
		}
	}
	return total
}

func lockKey(accountID uuid.UUID, name string) string {
	return fmt.Sprintf("paytrack:lock:%s:%s", accountID, name)
}

func checkRange(field string, d decimal.Decimal) error {
	if d.Abs().GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidInput, field, maxAmount.StringFixed(amountPlaces))
	}
	return nil
}

func cleanText(field, s string, maxLen int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case required && s == "":
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	case utf8.RuneCountInString(s) > maxLen:
		return "", fmt.Errorf("%w: %s longer than %d characters", ErrInvalidInput, field, maxLen)
	}
	return s, nil
}
