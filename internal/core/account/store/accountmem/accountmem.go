// Package accountmem keeps accounts in process memory.
package accountmem

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/account"
)

type Store struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]account.Account
	byUsername map[string]uuid.UUID
}

func NewStore() *Store {
	return &Store{
		byID:       make(map[uuid.UUID]account.Account),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (s *Store) Create(ctx context.Context, a account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[a.Username]; ok {
		return account.ErrDuplicateUsername
	}
	s.byID[a.ID] = a
	s.byUsername[a.Username] = a.ID

	return nil
}

func (s *Store) QueryByID(ctx context.Context, id uuid.UUID) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) QueryByUsername(ctx context.Context, username string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.byID[id], nil
}

var _ account.Store = (*Store)(nil)
