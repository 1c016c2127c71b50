// Package account registers and authenticates the users that own ledgers.
package account

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
	"golang.org/x/crypto/bcrypt"
)

// Set of errors for account API.
var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateUsername = errors.New("username already in use")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAuth              = errors.New("invalid username or password")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	maxPasswordLen = 72 // bcrypt ignores anything longer.
)

// Store is used to persist accounts.
type Store interface {
	Create(ctx context.Context, a Account) error
	QueryByID(ctx context.Context, id uuid.UUID) (Account, error)
	QueryByUsername(ctx context.Context, username string) (Account, error)
}

// Core deals with account business logic.
type Core struct {
	log   *slog.Logger
	store Store
	cost  int
	dummy []byte
}

// NewCore constructs a Core. cost is the bcrypt cost; values outside the
// bcrypt range fall back to bcrypt.DefaultCost.
func NewCore(log *slog.Logger, store Store, cost int) (*Core, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	// Compared against when the username is unknown so both failures cost
	// the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("generating dummy hash: %w", err)
	}

	return &Core{
		log:   log,
		store: store,
		cost:  cost,
		dummy: dummy,
	}, nil
}

// Create registers a new account. An empty password is accepted for old
// clients that only sent a username; such an account can never log in.
func (c *Core) Create(ctx context.Context, na NewAccount) (Account, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.account.Create")
	defer span.End()

	username := strings.TrimSpace(na.Username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return Account{}, fmt.Errorf("%w: username must have between %d and %d characters",
			ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if len(na.Password) > maxPasswordLen {
		return Account{}, fmt.Errorf("%w: password longer than %d bytes", ErrInvalidInput, maxPasswordLen)
	}

	var hash []byte
	if na.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(na.Password), c.cost)
		if err != nil {
			return Account{}, fmt.Errorf("generating password hash: %w", err)
		}
	}

	a := Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		DateCreated:  web.GetTime(ctx).Round(time.Microsecond),
	}

	if err := c.store.Create(ctx, a); err != nil {
		return Account{}, fmt.Errorf("create account[%s]: %w", username, err)
	}

	c.log.InfoContext(ctx, "account created", "account", a.ID)

	return a, nil
}

// Authenticate checks the credentials and returns the matching account.
func (c *Core) Authenticate(ctx context.Context, username, password string) (Account, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.account.Authenticate")
	defer span.End()

	a, err := c.store.QueryByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
			return Account{}, ErrAuth
		}
		return Account{}, fmt.Errorf("query account[%s]: %w", username, err)
	}

	if len(a.PasswordHash) == 0 {
		bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
		return Account{}, ErrAuth
	}

	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrAuth
	}

	return a, nil
}

// QueryByID resolves the opaque identifier handed out at login.
func (c *Core) QueryByID(ctx context.Context, id uuid.UUID) (Account, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.account.QueryByID")
	defer span.End()

	a, err := c.store.QueryByID(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("query account[%s]: %w", id, err)
	}

	return a, nil
}
