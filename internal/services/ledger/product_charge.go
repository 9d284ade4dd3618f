package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/pkg/timeutil"
)

// ProductChargeRequest debits one use of a product through the three-pool
// order: product free, product paid, then the main paid pool. AmountMinor
// governs the main-pool fallback draw; zero falls back to the product's
// configured price.
type ProductChargeRequest struct {
	RequestID      *string
	Identity       domain.Identity
	ProductType    string
	IdempotencyKey string
	AmountMinor    int64
}

// ChargeProduct debits one product use. The account row is locked before
// the inventory row so every product mutation for one account serializes,
// including first-use inventory creation. Free pools step by exactly one;
// the main-pool fallback moves the caller's amount in minor units.
func (s *Service) ChargeProduct(ctx context.Context, req ProductChargeRequest) (*domain.ProductChargeResult, error) {
	identity := req.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	config, err := s.productConfig(req.ProductType)
	if err != nil {
		return nil, err
	}
	amount := req.AmountMinor
	if amount == 0 {
		amount = config.PriceMinor
	}
	if amount <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"amount_minor must be positive")
	}
	if err := validateIdempotencyKey(req.IdempotencyKey); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByIdentity(ctx, nil, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		return nil, accountNotFound(identity)
	}
	if err := account.StatusError(); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	} else {
		existing, err := s.productRepo.GetUsageByIdempotencyKey(ctx, nil, account.ID, key)
		if err != nil {
			return nil, domain.WrapDatabaseError("check idempotency key", err)
		}
		if existing != nil {
			return s.replayProductCharge(ctx, account, existing, config)
		}
	}

	var result *domain.ProductChargeResult
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.accountRepo.GetByIDForUpdate(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if locked == nil {
			return accountNotFound(identity)
		}

		if req.IdempotencyKey != "" {
			existing, err := s.productRepo.GetUsageByIdempotencyKey(ctx, tx, locked.ID, key)
			if err != nil {
				return fmt.Errorf("recheck idempotency key: %w", err)
			}
			if existing != nil {
				result, err = s.replayProductCharge(ctx, locked, existing, config)
				return err
			}
		}

		if err := locked.StatusError(); err != nil {
			return err
		}

		inv, err := s.lockOrCreateInventory(ctx, tx, locked.ID, config)
		if err != nil {
			return err
		}

		freeBefore := inv.FreeRemaining
		paidBefore := inv.PaidRemaining

		var pool domain.PoolSource
		var costMinor int64
		switch {
		case inv.HasProductFree():
			inv.FreeRemaining--
			pool = domain.PoolSourceProductFree
		case inv.HasProductPaid():
			inv.PaidRemaining--
			pool = domain.PoolSourceProductPaid
			costMinor = config.PriceMinor
		case locked.CanCoverFromPaid(amount):
			locked.PaidCredits -= amount
			pool = domain.PoolSourceMainPaid
			costMinor = amount
		default:
			return s.insufficientCredits(locked.PaidCredits, amount)
		}
		inv.TotalUses++

		// Every product use lands in the main charges table too, so the
		// unified history shows it. The used_* flags describe the main
		// pools only: used_paid means the main paid pool moved, which is
		// what balance reconstruction relies on.
		charge := &domain.Charge{
			ID:             uuid.New(),
			AccountID:      locked.ID,
			AmountMinor:    amount,
			Currency:       locked.Currency,
			Description:    fmt.Sprintf("Product charge: %s", config.ProductType),
			IdempotencyKey: key,
			UsedFree:       pool == domain.PoolSourceProductFree,
			UsedPaid:       pool == domain.PoolSourceMainPaid,
			BalanceAfter:   locked.PaidCredits,
			ProductType:    &config.ProductType,
			Metadata:       domain.ChargeMetadata{RequestID: req.RequestID},
		}
		if err := s.chargeRepo.Create(ctx, tx, charge); err != nil {
			return fmt.Errorf("create product charge: %w", err)
		}
		if _, err := s.verifyChargeWritten(ctx, tx, charge); err != nil {
			return err
		}

		usage := &domain.ProductUsage{
			ID:                  uuid.New(),
			AccountID:           locked.ID,
			ChargeID:            charge.ID,
			ProductType:         config.ProductType,
			Pool:                pool,
			CostMinor:           costMinor,
			FreeRemainingBefore: freeBefore,
			FreeRemainingAfter:  inv.FreeRemaining,
			PaidRemainingBefore: paidBefore,
			PaidRemainingAfter:  inv.PaidRemaining,
			IdempotencyKey:      key,
			RequestID:           req.RequestID,
		}
		if err := s.productRepo.CreateUsage(ctx, tx, usage); err != nil {
			return fmt.Errorf("create product usage: %w", err)
		}

		if err := s.productRepo.UpdateInventory(ctx, tx, inv); err != nil {
			return fmt.Errorf("update product inventory: %w", err)
		}
		if err := s.verifyInventoryWritten(ctx, tx, inv); err != nil {
			return err
		}

		if pool == domain.PoolSourceMainPaid {
			if err := s.accountRepo.UpdatePools(ctx, tx, locked); err != nil {
				return fmt.Errorf("update account pools: %w", err)
			}
			if err := s.verifyPoolsWritten(ctx, tx, locked); err != nil {
				return err
			}
		}

		result = &domain.ProductChargeResult{
			Usage:         usage,
			Charge:        charge,
			Inventory:     inv,
			MainPaidAfter: locked.PaidCredits,
			HasMoreCredit: inv.HasProductFree() || inv.HasProductPaid() ||
				locked.CanCoverFromPaid(config.PriceMinor),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("product charge created",
			ports.String("account_id", result.Usage.AccountID.String()),
			ports.String("product_type", result.Usage.ProductType),
			ports.String("pool", string(result.Usage.Pool)),
			ports.Int64("cost_minor", result.Usage.CostMinor),
			ports.Int64("free_remaining", result.Inventory.FreeRemaining),
			ports.Int64("paid_remaining", result.Inventory.PaidRemaining))
	}
	return result, nil
}

// GetProductBalance reports the pools for one product. Accounts that never
// used the product see the config seeds; no inventory row is created.
func (s *Service) GetProductBalance(ctx context.Context, identity domain.Identity, productType string) (*domain.ProductBalance, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	config, err := s.productConfig(productType)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByIdentity(ctx, s.readDB, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		return nil, accountNotFound(identity)
	}

	inv, err := s.productRepo.GetInventory(ctx, s.readDB, account.ID, productType)
	if err != nil {
		return nil, domain.WrapDatabaseError("get product inventory", err)
	}

	return s.balanceFromInventory(account, inv, config), nil
}

// GetAllProductBalances reports the pools for every configured product
func (s *Service) GetAllProductBalances(ctx context.Context, identity domain.Identity) ([]*domain.ProductBalance, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByIdentity(ctx, s.readDB, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		return nil, accountNotFound(identity)
	}

	inventories, err := s.productRepo.ListInventories(ctx, s.readDB, account.ID)
	if err != nil {
		return nil, domain.WrapDatabaseError("list product inventories", err)
	}
	byProduct := make(map[string]*domain.ProductInventory, len(inventories))
	for _, inv := range inventories {
		byProduct[inv.ProductType] = inv
	}

	productTypes := make([]string, 0, len(s.config.Products))
	for productType := range s.config.Products {
		productTypes = append(productTypes, productType)
	}
	sort.Strings(productTypes)

	balances := make([]*domain.ProductBalance, 0, len(productTypes))
	for _, productType := range productTypes {
		config := s.config.Products[productType]
		balances = append(balances, s.balanceFromInventory(account, byProduct[productType], &config))
	}
	return balances, nil
}

// CheckProduct reports whether one more use of the product would succeed,
// with the pools behind the verdict. Identities with no account yet report
// the free seed they would be created with; nothing is written. Suspended
// and closed accounts report has_credit false with their real pools.
func (s *Service) CheckProduct(ctx context.Context, identity domain.Identity, productType string) (*domain.ProductCheck, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	config, err := s.productConfig(productType)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByIdentity(ctx, s.readDB, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		// The first main-pool interaction creates the account, so the
		// forward answer for a fresh identity is the seed itself
		return &domain.ProductCheck{
			HasCredit:      config.FreeInitial > 0,
			ProductType:    productType,
			FreeRemaining:  config.FreeInitial,
			TotalAvailable: config.FreeInitial,
		}, nil
	}

	inv, err := s.productRepo.GetInventory(ctx, s.readDB, account.ID, productType)
	if err != nil {
		return nil, domain.WrapDatabaseError("get product inventory", err)
	}

	balance := s.balanceFromInventory(account, inv, config)
	check := &domain.ProductCheck{
		ProductType:     productType,
		FreeRemaining:   balance.FreeRemaining,
		PaidRemaining:   balance.PaidRemaining,
		MainPoolCredits: balance.MainPoolCredits,
		TotalAvailable:  balance.TotalAvailable,
	}
	if account.IsActive() {
		check.HasCredit = balance.FreeRemaining > 0 || balance.PaidRemaining > 0 ||
			account.CanCoverFromPaid(config.PriceMinor)
	}
	return check, nil
}

// lockOrCreateInventory returns the locked inventory row, creating it with
// the free seed on first use. The caller already holds the account row
// lock, which serializes creation.
func (s *Service) lockOrCreateInventory(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, config *domain.ProductConfig) (*domain.ProductInventory, error) {
	inv, err := s.productRepo.GetInventoryForUpdate(ctx, tx, accountID, config.ProductType)
	if err != nil {
		return nil, fmt.Errorf("lock product inventory: %w", err)
	}
	if inv != nil {
		return inv, nil
	}

	now := timeutil.Now()
	inv = &domain.ProductInventory{
		AccountID:        accountID,
		ProductType:      config.ProductType,
		FreeRemaining:    config.FreeInitial,
		PaidRemaining:    0,
		LastDailyRefresh: &now,
	}
	if err := s.productRepo.CreateInventory(ctx, tx, inv); err != nil {
		return nil, fmt.Errorf("create product inventory: %w", err)
	}

	s.logger.Info("product inventory created",
		ports.String("account_id", accountID.String()),
		ports.String("product_type", config.ProductType),
		ports.Int64("free_initial", config.FreeInitial))

	return inv, nil
}

// replayProductCharge rebuilds the result for a usage row that already
// exists: historical pool attribution with current pool levels.
func (s *Service) replayProductCharge(ctx context.Context, account *domain.Account, usage *domain.ProductUsage, config *domain.ProductConfig) (*domain.ProductChargeResult, error) {
	inv, err := s.productRepo.GetInventory(ctx, nil, account.ID, usage.ProductType)
	if err != nil {
		return nil, domain.WrapDatabaseError("get product inventory", err)
	}
	if inv == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeDataIntegrity,
			fmt.Sprintf("usage log exists without inventory for product %s", usage.ProductType))
	}

	s.logger.Debug("product charge replayed for idempotency key",
		ports.String("account_id", account.ID.String()),
		ports.String("product_type", usage.ProductType),
		ports.String("idempotency_key", usage.IdempotencyKey))

	return &domain.ProductChargeResult{
		Usage:         usage,
		Inventory:     inv,
		MainPaidAfter: account.PaidCredits,
		HasMoreCredit: inv.HasProductFree() || inv.HasProductPaid() ||
			account.CanCoverFromPaid(config.PriceMinor),
		Replayed: true,
	}, nil
}

// verifyInventoryWritten re-reads the inventory inside the transaction and
// checks the stored pools against the computed ones
func (s *Service) verifyInventoryWritten(ctx context.Context, tx pgx.Tx, expected *domain.ProductInventory) error {
	observed, err := s.productRepo.GetInventory(ctx, tx, expected.AccountID, expected.ProductType)
	if err != nil {
		return fmt.Errorf("verify product inventory: %w", err)
	}
	if observed == nil {
		return domain.NewDomainError(domain.ErrorCodeWriteVerification,
			fmt.Sprintf("inventory %s/%s not found after update", expected.AccountID, expected.ProductType))
	}
	if observed.FreeRemaining != expected.FreeRemaining ||
		observed.PaidRemaining != expected.PaidRemaining ||
		observed.TotalUses != expected.TotalUses {
		return domain.NewDomainError(domain.ErrorCodeWriteVerification,
			"inventory pools do not match computed balances").
			WithDetail("expected_free", expected.FreeRemaining).
			WithDetail("observed_free", observed.FreeRemaining).
			WithDetail("expected_paid", expected.PaidRemaining).
			WithDetail("observed_paid", observed.PaidRemaining)
	}
	return nil
}

// balanceFromInventory builds the balance view, substituting config seeds
// when no inventory row exists yet
func (s *Service) balanceFromInventory(account *domain.Account, inv *domain.ProductInventory, config *domain.ProductConfig) *domain.ProductBalance {
	balance := &domain.ProductBalance{
		ProductType:     config.ProductType,
		FreeRemaining:   config.FreeInitial,
		PriceMinor:      config.PriceMinor,
		MainPoolCredits: account.PaidCredits,
	}
	if inv != nil {
		balance.FreeRemaining = inv.FreeRemaining
		balance.PaidRemaining = inv.PaidRemaining
		balance.TotalUses = inv.TotalUses
	}
	balance.TotalAvailable = balance.FreeRemaining + balance.PaidRemaining
	return balance
}

// productConfig resolves a product type against the configured catalog
func (s *Service) productConfig(productType string) (*domain.ProductConfig, error) {
	config, ok := s.config.Products[productType]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("Unknown product type: %s", productType))
	}
	return &config, nil
}
