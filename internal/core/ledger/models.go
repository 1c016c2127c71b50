package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the direction of a transaction.
type Kind string

// Set of transaction kinds.
const (
	KindDebit      Kind = "debit"
	KindCredit     Kind = "credit"
	KindAdjustment Kind = "adjustment"
)

// Apply returns the balance after a transaction of kind k and amount.
// Debits increase what the customer owes. Credits and adjustments decrease
// it.
func (k Kind) Apply(balance, amount decimal.Decimal) decimal.Decimal {
	if k == KindDebit {
		return balance.Add(amount)
	}
	return balance.Sub(amount)
}

func (k Kind) valid() bool {
	switch k {
	case KindDebit, KindCredit, KindAdjustment:
		return true
	}
	return false
}

// Customer is a counterparty with a running balance. A positive balance is
// money the customer owes.
type Customer struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Name           string
	Product        string
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal
	DateCreated    time.Time
}

type NewCustomer struct {
	Name           string
	Product        string
	InitialBalance decimal.Decimal
}

// Transaction is an immutable ledger entry. Amount is always positive, the
// Kind carries the direction.
type Transaction struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	DateCreated time.Time
}

type NewTransaction struct {
	Kind        Kind
	Amount      decimal.Decimal
	Description string
}

// Activity is a transaction together with the name of its customer.
type Activity struct {
	CustomerName string
	Transaction
}

// Statement is a consistent view of a customer and its full history.
type Statement struct {
	Customer     Customer
	Transactions []Transaction
}

// Summary aggregates an account's ledger.
type Summary struct {
	TotalCustomers     int
	TotalDebt          decimal.Decimal
	RecentTransactions int
	Latest             []Activity
}
