package account_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/account"
	"github.com/rschio/paytrack/internal/core/account/store/accountmem"
	"golang.org/x/crypto/bcrypt"
)

func newCore(t *testing.T) *account.Core {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	core, err := account.NewCore(log, accountmem.NewStore(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	return core
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	a, err := core.Create(ctx, account.NewAccount{Username: "  mehmet ", Password: "gizli123"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Username != "mehmet" {
		t.Errorf("username should be trimmed, got %q", a.Username)
	}
	if string(a.PasswordHash) == "gizli123" {
		t.Fatal("password stored in clear text")
	}

	got, err := core.Authenticate(ctx, "mehmet", "gizli123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("got account %s want %s", got.ID, a.ID)
	}

	byID, err := core.QueryByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("query by id: %v", err)
	}
	if byID.Username != "mehmet" {
		t.Errorf("got username %q want mehmet", byID.Username)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	if _, err := core.Create(ctx, account.NewAccount{Username: "mehmet", Password: "gizli123"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := core.Create(ctx, account.NewAccount{Username: "nopass"}); err != nil {
		t.Fatalf("create without password: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "mehmet", "yanlis"},
		{"unknown user", "zeynep", "gizli123"},
		{"account without password", "nopass", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Authenticate(ctx, tt.username, tt.password)
			if !errors.Is(err, account.ErrAuth) {
				t.Fatalf("got %v want ErrAuth", err)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	tests := []struct {
		name string
		na   account.NewAccount
		want error
	}{
		{"short username", account.NewAccount{Username: "ab"}, account.ErrInvalidInput},
		{"blank username", account.NewAccount{Username: "    "}, account.ErrInvalidInput},
		{"long username", account.NewAccount{Username: strings.Repeat("a", 51)}, account.ErrInvalidInput},
		{"long password", account.NewAccount{Username: "mehmet", Password: strings.Repeat("p", 73)}, account.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := core.Create(ctx, tt.na); !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}

	if _, err := core.Create(ctx, account.NewAccount{Username: "mehmet"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := core.Create(ctx, account.NewAccount{Username: "mehmet"}); !errors.Is(err, account.ErrDuplicateUsername) {
		t.Fatalf("got %v want ErrDuplicateUsername", err)
	}
}

func TestQueryByIDNotFound(t *testing.T) {
	core := newCore(t)

	if _, err := core.QueryByID(context.Background(), uuid.New()); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}
