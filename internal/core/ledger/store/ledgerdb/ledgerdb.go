// Package ledgerdb persists the ledger in PostgreSQL.
package ledgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	db "github.com/rschio/paytrack/internal/data/dbsql/pgx"
	"github.com/shopspring/decimal"
)

type Store struct {
	log *slog.Logger
	db  db.DB
}

func NewStore(log *slog.Logger, database db.DB) *Store {
	return &Store{
		log: log,
		db:  database,
	}
}

func (s *Store) ExecUnderTx(ctx context.Context, fn func(txStore ledger.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(s.log, tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	const q = `
	INSERT INTO customers
		(id, account_id, name, product, initial_balance, balance, date_created)
	VALUES
		(@id, @account_id, @name, @product, @initial_balance, @balance, @date_created)`

	if err := db.NamedExec(ctx, s.log, s.db, q, toDBCustomer(c)); err != nil {
		switch {
		case errors.Is(err, db.ErrDBDuplicatedEntry):
			return ledger.ErrDuplicateName
		case errors.Is(err, db.ErrDBForeignKey):
			return fmt.Errorf("unknown account[%s]: %w", c.AccountID, ledger.ErrNotFound)
		case errors.Is(err, db.ErrDBOutOfRange):
			return fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err)
		}
		return err
	}

	return nil
}

func (s *Store) QueryCustomers(ctx context.Context, accountID uuid.UUID) ([]ledger.Customer, error) {
	data := struct {
		AccountID uuid.UUID `db:"account_id"`
	}{
		AccountID: accountID,
	}

	const q = `
	SELECT
		id, seq, account_id, name, product, initial_balance, balance, date_created
	FROM
		customers
	WHERE
		account_id = @account_id
	ORDER BY
		seq`

	cs, err := db.NamedQuerySlice[dbCustomer](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	return toCustomers(cs), nil
}

func (s *Store) QueryCustomerByName(ctx context.Context, accountID uuid.UUID, name string) (ledger.Customer, error) {
	const q = `
	SELECT
		id, seq, account_id, name, product, initial_balance, balance, date_created
	FROM
		customers
	WHERE
		account_id = @account_id AND name = @name`

	return s.queryCustomer(ctx, q, accountID, name)
}

func (s *Store) QueryCustomerForUpdate(ctx context.Context, accountID uuid.UUID, name string) (ledger.Customer, error) {
	const q = `
	SELECT
		id, seq, account_id, name, product, initial_balance, balance, date_created
	FROM
		customers
	WHERE
		account_id = @account_id AND name = @name
	FOR UPDATE`

	return s.queryCustomer(ctx, q, accountID, name)
}

func (s *Store) queryCustomer(ctx context.Context, q string, accountID uuid.UUID, name string) (ledger.Customer, error) {
	data := struct {
		AccountID uuid.UUID `db:"account_id"`
		Name      string    `db:"name"`
	}{
		AccountID: accountID,
		Name:      name,
	}

	c, err := db.NamedQueryStruct[dbCustomer](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return ledger.Customer{}, ledger.ErrNotFound
		}
		return ledger.Customer{}, err
	}

	return toCustomer(c), nil
}

func (s *Store) UpdateBalance(ctx context.Context, customerID uuid.UUID, balance decimal.Decimal) error {
	data := struct {
		ID      uuid.UUID       `db:"id"`
		Balance decimal.Decimal `db:"balance"`
	}{
		ID:      customerID,
		Balance: balance,
	}

	const q = `
	UPDATE
		customers
	SET
		balance = @balance
	WHERE
		id = @id`

	n, err := db.NamedExecAffected(ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBOutOfRange) {
			return fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err)
		}
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

// DeleteCustomer removes the customer. Its transactions go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteCustomer(ctx context.Context, accountID uuid.UUID, name string) error {
	data := struct {
		AccountID uuid.UUID `db:"account_id"`
		Name      string    `db:"name"`
	}{
		AccountID: accountID,
		Name:      name,
	}

	const q = `
	DELETE FROM
		customers
	WHERE
		account_id = @account_id AND name = @name`

	n, err := db.NamedExecAffected(ctx, s.log, s.db, q, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (s *Store) AddTransaction(ctx context.Context, t ledger.Transaction) error {
	const q = `
	INSERT INTO transactions
		(id, customer_id, kind, amount, description, date_created)
	VALUES
		(@id, @customer_id, @kind, @amount, @description, @date_created)`

	if err := db.NamedExec(ctx, s.log, s.db, q, toNewDBTransaction(t)); err != nil {
		switch {
		case errors.Is(err, db.ErrDBForeignKey):
			return ledger.ErrNotFound
		case errors.Is(err, db.ErrDBOutOfRange):
			return fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err)
		}
		return err
	}

	return nil
}

func (s *Store) QueryTransactions(ctx context.Context, customerID uuid.UUID) ([]ledger.Transaction, error) {
	data := struct {
		CustomerID uuid.UUID `db:"customer_id"`
	}{
		CustomerID: customerID,
	}

	const q = `
	SELECT
		id, seq, customer_id, kind, amount, description, date_created
	FROM
		transactions
	WHERE
		customer_id = @customer_id
	ORDER BY
		date_created, seq`

	ts, err := db.NamedQuerySlice[dbTransaction](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	return toTransactions(ts), nil
}

func (s *Store) CountTransactionsSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	data := struct {
		AccountID uuid.UUID `db:"account_id"`
		Since     time.Time `db:"since"`
	}{
		AccountID: accountID,
		Since:     since.UTC(),
	}

	const q = `
	SELECT
		count(t.id) AS count
	FROM
		transactions AS t
		JOIN customers AS c ON c.id = t.customer_id
	WHERE
		c.account_id = @account_id AND t.date_created >= @since`

	out, err := db.NamedQueryStruct[struct {
		Count int64 `db:"count"`
	}](ctx, s.log, s.db, q, data)
	if err != nil {
		return 0, err
	}

	return int(out.Count), nil
}

func (s *Store) QueryLatestActivity(ctx context.Context, accountID uuid.UUID, limit int) ([]ledger.Activity, error) {
	data := struct {
		AccountID uuid.UUID `db:"account_id"`
		Limit     int       `db:"limit"`
	}{
		AccountID: accountID,
		Limit:     limit,
	}

	const q = `
	SELECT
		c.name AS customer_name,
		t.id, t.seq, t.customer_id, t.kind, t.amount, t.description, t.date_created
	FROM
		transactions AS t
		JOIN customers AS c ON c.id = t.customer_id
	WHERE
		c.account_id = @account_id
	ORDER BY
		t.date_created DESC, t.seq DESC
	LIMIT @limit`

	as, err := db.NamedQuerySlice[dbActivity](ctx, s.log, s.db, q, data)
	if err != nil {
		return nil, err
	}

	return toActivities(as), nil
}

var _ ledger.Store = (*Store)(nil)
