package ledgerdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/shopspring/decimal"
)

type dbCustomer struct {
	ID             uuid.UUID       `db:"id"`
	Seq            int64           `db:"seq"`
	AccountID      uuid.UUID       `db:"account_id"`
	Name           string          `db:"name"`
	Product        string          `db:"product"`
	InitialBalance decimal.Decimal `db:"initial_balance"`
	Balance        decimal.Decimal `db:"balance"`
	DateCreated    time.Time       `db:"date_created"`
}

func toDBCustomer(c ledger.Customer) dbCustomer {
	return dbCustomer{
		ID:             c.ID,
		AccountID:      c.AccountID,
		Name:           c.Name,
		Product:        c.Product,
		InitialBalance: c.InitialBalance,
		Balance:        c.Balance,
		DateCreated:    c.DateCreated.UTC(),
	}
}

func toCustomer(c dbCustomer) ledger.Customer {
	return ledger.Customer{
		ID:             c.ID,
		AccountID:      c.AccountID,
		Name:           c.Name,
		Product:        c.Product,
		InitialBalance: c.InitialBalance,
		Balance:        c.Balance,
		DateCreated:    c.DateCreated.UTC(),
	}
}

func toCustomers(cs []dbCustomer) []ledger.Customer {
	slice := make([]ledger.Customer, len(cs))
	for i, c := range cs {
		slice[i] = toCustomer(c)
	}
	return slice
}

type dbTransaction struct {
	ID          uuid.UUID       `db:"id"`
	Seq         int64           `db:"seq"`
	CustomerID  uuid.UUID       `db:"customer_id"`
	Kind        string          `db:"kind"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	DateCreated time.Time       `db:"date_created"`
}

// newDBTransaction is the insert shape; seq is assigned by the database.
type newDBTransaction struct {
	ID          uuid.UUID       `db:"id"`
	CustomerID  uuid.UUID       `db:"customer_id"`
	Kind        string          `db:"kind"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	DateCreated time.Time       `db:"date_created"`
}

func toNewDBTransaction(t ledger.Transaction) newDBTransaction {
	return newDBTransaction{
		ID:          t.ID,
		CustomerID:  t.CustomerID,
		Kind:        string(t.Kind),
		Amount:      t.Amount,
		Description: t.Description,
		DateCreated: t.DateCreated.UTC(),
	}
}

func toTransaction(t dbTransaction) ledger.Transaction {
	return ledger.Transaction{
		ID:          t.ID,
		CustomerID:  t.CustomerID,
		Kind:        ledger.Kind(t.Kind),
		Amount:      t.Amount,
		Description: t.Description,
		DateCreated: t.DateCreated.UTC(),
	}
}

func toTransactions(ts []dbTransaction) []ledger.Transaction {
	slice := make([]ledger.Transaction, len(ts))
	for i, t := range ts {
		slice[i] = toTransaction(t)
	}
	return slice
}

type dbActivity struct {
	CustomerName string `db:"customer_name"`
	dbTransaction
}

func toActivities(as []dbActivity) []ledger.Activity {
	slice := make([]ledger.Activity, len(as))
	for i, a := range as {
		slice[i] = ledger.Activity{
			CustomerName: a.CustomerName,
			Transaction:  toTransaction(a.dbTransaction),
		}
	}
	return slice
}
