// Package accountdb persists accounts in PostgreSQL.
package accountdb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/account"
	db "github.com/rschio/paytrack/internal/data/dbsql/pgx"
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

func (s *Store) Create(ctx context.Context, a account.Account) error {
	const q = `
	INSERT INTO accounts
		(id, username, password_hash, date_created)
	VALUES
		(@id, @username, @password_hash, @date_created)`

	if err := db.NamedExec(ctx, s.log, s.db, q, toDBAccount(a)); err != nil {
		if errors.Is(err, db.ErrDBDuplicatedEntry) {
			return account.ErrDuplicateUsername
		}
		return err
	}

	return nil
}

func (s *Store) QueryByID(ctx context.Context, id uuid.UUID) (account.Account, error) {
	data := struct {
		ID uuid.UUID `db:"id"`
	}{
		ID: id,
	}

	const q = `
	SELECT
		id, username, password_hash, date_created
	FROM
		accounts
	WHERE
		id = @id`

	return s.query(ctx, q, data)
}

func (s *Store) QueryByUsername(ctx context.Context, username string) (account.Account, error) {
	data := struct {
		Username string `db:"username"`
	}{
		Username: username,
	}

	const q = `
	SELECT
		id, username, password_hash, date_created
	FROM
		accounts
	WHERE
		username = @username`

	return s.query(ctx, q, data)
}

func (s *Store) query(ctx context.Context, q string, data any) (account.Account, error) {
	a, err := db.NamedQueryStruct[dbAccount](ctx, s.log, s.db, q, data)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}

	return toAccount(a), nil
}

// ----------------------------------------------------------------------

type dbAccount struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	DateCreated  time.Time `db:"date_created"`
}

func toDBAccount(a account.Account) dbAccount {
	return dbAccount{
		ID:           a.ID,
		Username:     a.Username,
		PasswordHash: string(a.PasswordHash),
		DateCreated:  a.DateCreated.UTC(),
	}
}

func toAccount(a dbAccount) account.Account {
	var hash []byte
	if a.PasswordHash != "" {
		hash = []byte(a.PasswordHash)
	}
	return account.Account{
		ID:           a.ID,
		Username:     a.Username,
		PasswordHash: hash,
		DateCreated:  a.DateCreated.UTC(),
	}
}

var _ account.Store = (*Store)(nil)
