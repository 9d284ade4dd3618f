package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/adapters/postgres"
	"github.com/creditgate/billing/internal/domain"
)

func TestCreditRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	dbExecutor := postgres.NewDBExecutor(pool)
	accounts := postgres.NewAccountRepository(dbExecutor)
	repo := postgres.NewCreditRepository(dbExecutor)

	t.Run("creates and reads back a purchase credit", func(t *testing.T) {
		account := createTestAccount(t, accounts)
		paymentID := "pi_test_123"

		credit := &domain.Credit{
			ID:                    uuid.New(),
			AccountID:             account.ID,
			AmountMinor:           50,
			Currency:              "USD",
			BalanceAfter:          50,
			Type:                  domain.CreditTypePurchase,
			Description:           "Purchased $5.00 (50 uses) via Stripe",
			ExternalTransactionID: &paymentID,
			IdempotencyKey:        paymentID,
		}
		require.NoError(t, repo.Create(ctx, nil, credit))

		retrieved, err := repo.GetByID(ctx, nil, credit.ID)
		require.NoError(t, err)
		require.NotNil(t, retrieved)
		assert.Equal(t, domain.CreditTypePurchase, retrieved.Type)
		assert.Equal(t, int64(50), retrieved.AmountMinor)
		assert.Equal(t, int64(50), retrieved.BalanceAfter)
		require.NotNil(t, retrieved.ExternalTransactionID)
		assert.Equal(t, paymentID, *retrieved.ExternalTransactionID)
		assert.False(t, retrieved.IsTest)
	})

	t.Run("finds credit by external transaction id", func(t *testing.T) {
		account := createTestAccount(t, accounts)
		paymentID := "pi_lookup_456"

		credit := &domain.Credit{
			ID:                    uuid.New(),
			AccountID:             account.ID,
			AmountMinor:           50,
			Currency:              "USD",
			BalanceAfter:          50,
			Type:                  domain.CreditTypePurchase,
			Description:           "Purchased $5.00 (50 uses) via Stripe",
			ExternalTransactionID: &paymentID,
			IdempotencyKey:        paymentID,
		}
		require.NoError(t, repo.Create(ctx, nil, credit))

		found, err := repo.GetByExternalTransactionID(ctx, nil, paymentID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, credit.ID, found.ID)

		none, err := repo.GetByExternalTransactionID(ctx, nil, "pi_missing")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("rejects duplicate idempotency key for same account", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		first := &domain.Credit{
			ID:             uuid.New(),
			AccountID:      account.ID,
			AmountMinor:    10,
			Currency:       "USD",
			BalanceAfter:   10,
			Type:           domain.CreditTypeGrant,
			Description:    "Support grant",
			IdempotencyKey: "grant-dup",
		}
		require.NoError(t, repo.Create(ctx, nil, first))

		second := &domain.Credit{
			ID:             uuid.New(),
			AccountID:      account.ID,
			AmountMinor:    10,
			Currency:       "USD",
			BalanceAfter:   20,
			Type:           domain.CreditTypeGrant,
			Description:    "Support grant",
			IdempotencyKey: "grant-dup",
		}
		assert.Error(t, repo.Create(ctx, nil, second))
	})

	t.Run("lists credits newest first", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		balance := int64(0)
		for _, key := range []string{"c1", "c2"} {
			balance += 25
			credit := &domain.Credit{
				ID:             uuid.New(),
				AccountID:      account.ID,
				AmountMinor:    25,
				Currency:       "USD",
				BalanceAfter:   balance,
				Type:           domain.CreditTypeGrant,
				Description:    "Support grant",
				IdempotencyKey: key,
			}
			require.NoError(t, repo.Create(ctx, nil, credit))
		}

		credits, err := repo.ListByAccount(ctx, nil, account.ID, 10)
		require.NoError(t, err)
		require.Len(t, credits, 2)
		assert.False(t, credits[0].CreatedAt.Before(credits[1].CreatedAt))

		bounded, err := repo.ListByAccount(ctx, nil, account.ID, 1)
		require.NoError(t, err)
		assert.Len(t, bounded, 1)

		count, err := repo.CountByAccount(ctx, nil, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}
