package fakebroker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/brokerclient/internal/models"
)

// SeedAccount is one account created by Seed
type SeedAccount struct {
	Username string
	Password string
	Admin    bool
	Holdings map[string]decimal.Decimal
}

// DefaultAccounts mirrors the backend's development data
var DefaultAccounts = []SeedAccount{
	{Username: "admin", Password: "admin123", Admin: true},
	{Username: "customer1", Password: "pass123", Holdings: map[string]decimal.Decimal{
		models.CashAsset: decimal.NewFromInt(10000),
		"AAPL":           decimal.NewFromInt(10),
	}},
	{Username: "customer2", Password: "pass123", Holdings: map[string]decimal.Decimal{
		models.CashAsset: decimal.NewFromInt(15000),
		"GOOGL":          decimal.NewFromInt(5),
	}},
}

// Seed creates accounts and funds their holdings. An account whose
// username is already taken is skipped.
func (b *Backend) Seed(accounts []SeedAccount) error {
	for _, acct := range accounts {
		id, err := b.AddUser(acct.Username, acct.Password, acct.Admin)
		if err == ErrUserExists {
			b.logger.Info("seed account exists, skipping", "username", acct.Username)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", acct.Username, err)
		}
		for asset, size := range acct.Holdings {
			b.Deposit(id, asset, size)
		}
		b.logger.Info("seeded account", "username", acct.Username, "user_id", id, "admin", acct.Admin)
	}
	return nil
}
