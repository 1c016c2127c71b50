// Package ledgermem keeps the ledger in process memory. It is meant for
// local runs and tests; nothing survives a restart.
package ledgermem

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/shopspring/decimal"
)

type state struct {
	customers    map[uuid.UUID][]ledger.Customer
	transactions map[uuid.UUID][]ledger.Transaction
}

func (s *state) clone() *state {
	c := state{
		customers:    make(map[uuid.UUID][]ledger.Customer, len(s.customers)),
		transactions: make(map[uuid.UUID][]ledger.Transaction, len(s.transactions)),
	}
	for k, v := range s.customers {
		c.customers[k] = slices.Clone(v)
	}
	for k, v := range s.transactions {
		c.transactions[k] = slices.Clone(v)
	}
	return &c
}

type memDB struct {
	mu sync.Mutex
	st *state
}

// Store is a ledger.Store backed by maps. A single mutex guards all state,
// so every store transaction runs alone.
type Store struct {
	db   *memDB
	inTx bool
}

func NewStore() *Store {
	return &Store{
		db: &memDB{
			st: &state{
				customers:    make(map[uuid.UUID][]ledger.Customer),
				transactions: make(map[uuid.UUID][]ledger.Transaction),
			},
		},
	}
}

func (s *Store) ExecUnderTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.db.st.clone()
	tx := &Store{db: s.db, inTx: true}

	if err := fn(tx); err != nil {
		s.db.st = snapshot
		return err
	}

	return nil
}

func (s *Store) locked(fn func(st *state) error) error {
	if !s.inTx {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
	}
	return fn(s.db.st)
}

func (s *Store) CreateCustomer(ctx context.Context, c ledger.Customer) error {
	return s.locked(func(st *state) error {
		if _, ok := find(st.customers[c.AccountID], c.Name); ok {
			return ledger.ErrDuplicateName
		}
		st.customers[c.AccountID] = append(st.customers[c.AccountID], c)
		return nil
	})
}

func (s *Store) QueryCustomers(ctx context.Context, accountID uuid.UUID) ([]ledger.Customer, error) {
	var out []ledger.Customer
	err := s.locked(func(st *state) error {
		out = slices.Clone(st.customers[accountID])
		return nil
	})
	if out == nil {
		out = []ledger.Customer{}
	}
	return out, err
}

func (s *Store) QueryCustomerByName(ctx context.Context, accountID uuid.UUID, name string) (ledger.Customer, error) {
	var out ledger.Customer
	err := s.locked(func(st *state) error {
		i, ok := find(st.customers[accountID], name)
		if !ok {
			return ledger.ErrNotFound
		}
		out = st.customers[accountID][i]
		return nil
	})
	return out, err
}

// QueryCustomerForUpdate needs no row lock; the store mutex already
// excludes every other caller.
func (s *Store) QueryCustomerForUpdate(ctx context.Context, accountID uuid.UUID, name string) (ledger.Customer, error) {
	return s.QueryCustomerByName(ctx, accountID, name)
}

func (s *Store) UpdateBalance(ctx context.Context, customerID uuid.UUID, balance decimal.Decimal) error {
	return s.locked(func(st *state) error {
		for acc, cs := range st.customers {
			for i := range cs {
				if cs[i].ID == customerID {
					st.customers[acc][i].Balance = balance
					return nil
				}
			}
		}
		return ledger.ErrNotFound
	})
}

func (s *Store) DeleteCustomer(ctx context.Context, accountID uuid.UUID, name string) error {
	return s.locked(func(st *state) error {
		cs := st.customers[accountID]
		i, ok := find(cs, name)
		if !ok {
			return ledger.ErrNotFound
		}
		delete(st.transactions, cs[i].ID)
		st.customers[accountID] = slices.Delete(slices.Clone(cs), i, i+1)
		return nil
	})
}

func (s *Store) AddTransaction(ctx context.Context, t ledger.Transaction) error {
	return s.locked(func(st *state) error {
		if !exists(st, t.CustomerID) {
			return ledger.ErrNotFound
		}
		st.transactions[t.CustomerID] = append(st.transactions[t.CustomerID], t)
		return nil
	})
}

func (s *Store) QueryTransactions(ctx context.Context, customerID uuid.UUID) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := s.locked(func(st *state) error {
		out = slices.Clone(st.transactions[customerID])
		return nil
	})
	if out == nil {
		out = []ledger.Transaction{}
	}
	return out, err
}

func (s *Store) CountTransactionsSince(ctx context.Context, accountID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := s.locked(func(st *state) error {
		for _, c := range st.customers[accountID] {
			for _, t := range st.transactions[c.ID] {
				if !t.DateCreated.Before(since) {
					n++
				}
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) QueryLatestActivity(ctx context.Context, accountID uuid.UUID, limit int) ([]ledger.Activity, error) {
	out := []ledger.Activity{}
	err := s.locked(func(st *state) error {
		for _, c := range st.customers[accountID] {
			for _, t := range st.transactions[c.ID] {
				out = append(out, ledger.Activity{CustomerName: c.Name, Transaction: t})
			}
		}
		return nil
	})

	// Stable keeps append order for equal stamps, so reversing it gives
	// newest first.
	slices.SortStableFunc(out, func(a, b ledger.Activity) int {
		return a.DateCreated.Compare(b.DateCreated)
	})
	slices.Reverse(out)

	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func find(cs []ledger.Customer, name string) (int, bool) {
	i := slices.IndexFunc(cs, func(c ledger.Customer) bool { return c.Name == name })
	return i, i >= 0
}

func exists(st *state, customerID uuid.UUID) bool {
	for _, cs := range st.customers {
		if slices.ContainsFunc(cs, func(c ledger.Customer) bool { return c.ID == customerID }) {
			return true
		}
	}
	return false
}

var _ ledger.Store = (*Store)(nil)
