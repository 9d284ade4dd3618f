package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/billing/internal/adapters/postgres"
	"github.com/creditgate/billing/internal/domain"
)

func TestPaymentRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	dbExecutor := postgres.NewDBExecutor(pool)
	accounts := postgres.NewAccountRepository(dbExecutor)
	repo := postgres.NewPaymentRepository(dbExecutor)

	t.Run("creates pending record keyed by provider payment id", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		record := &domain.PaymentRecord{
			ID:            "pi_record_1",
			Provider:      "stripe",
			AccountID:     account.ID,
			AmountMinor:   500,
			Currency:      "USD",
			UsesPurchased: 50,
			Status:        domain.PaymentStatusPending,
		}
		require.NoError(t, repo.Create(ctx, nil, record))

		retrieved, err := repo.GetByID(ctx, nil, "pi_record_1")
		require.NoError(t, err)
		require.NotNil(t, retrieved)
		assert.Equal(t, domain.PaymentStatusPending, retrieved.Status)
		assert.Equal(t, int64(50), retrieved.UsesPurchased)

		none, err := repo.GetByID(ctx, nil, "pi_missing")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("rejects duplicate payment id", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		record := &domain.PaymentRecord{
			ID: "pi_dup", Provider: "stripe", AccountID: account.ID,
			AmountMinor: 500, Currency: "USD", UsesPurchased: 50,
			Status: domain.PaymentStatusPending,
		}
		require.NoError(t, repo.Create(ctx, nil, record))
		assert.Error(t, repo.Create(ctx, nil, record))
	})

	t.Run("transitions status under a row lock", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		record := &domain.PaymentRecord{
			ID: "pi_transition", Provider: "stripe", AccountID: account.ID,
			AmountMinor: 500, Currency: "USD", UsesPurchased: 50,
			Status: domain.PaymentStatusPending,
		}
		require.NoError(t, repo.Create(ctx, nil, record))

		err := dbExecutor.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			locked, err := repo.GetByIDForUpdate(ctx, tx, "pi_transition")
			if err != nil {
				return err
			}
			require.NotNil(t, locked)
			return repo.UpdateStatus(ctx, tx, locked.ID, domain.PaymentStatusFulfilled)
		})
		require.NoError(t, err)

		retrieved, err := repo.GetByID(ctx, nil, "pi_transition")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFulfilled, retrieved.Status)
	})

	t.Run("update status fails for missing record", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, nil, "pi_nowhere", domain.PaymentStatusFailed)
		assert.Error(t, err)
	})

	t.Run("lists records newest first", func(t *testing.T) {
		account := createTestAccount(t, accounts)

		for _, id := range []string{"pi_list_1", "pi_list_2"} {
			record := &domain.PaymentRecord{
				ID: id, Provider: "stripe", AccountID: account.ID,
				AmountMinor: 500, Currency: "USD", UsesPurchased: 50,
				Status: domain.PaymentStatusPending,
			}
			require.NoError(t, repo.Create(ctx, nil, record))
		}

		records, err := repo.ListByAccount(ctx, nil, account.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.False(t, records[0].CreatedAt.Before(records[1].CreatedAt))
	})
}
