package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is a tenant. Every customer belongs to exactly one account.
type Account struct {
	ID           uuid.UUID
	Username     string
	PasswordHash []byte
	DateCreated  time.Time
}

type NewAccount struct {
	Username string
	Password string
}
