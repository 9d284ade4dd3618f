package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
	"github.com/creditgate/billing/pkg/timeutil"
)

const uniqueViolation = "23505"

// Defaults are the seeds applied to accounts created without explicit values
type Defaults struct {
	Currency           string
	PlanName           string
	FreeUsesPerAccount int64
}

// Service is the account registry: upsert, lookup, and profile sync.
// Status transitions are data-driven; operators flip the column and the
// ledger enforces the consequences.
type Service struct {
	accountRepo ports.AccountRepository
	logger      ports.Logger
	defaults    Defaults
}

// NewService creates a new account service
func NewService(accountRepo ports.AccountRepository, logger ports.Logger, defaults Defaults) *Service {
	return &Service{
		accountRepo: accountRepo,
		logger:      logger,
		defaults:    defaults,
	}
}

// CreateRequest carries the identity and optional seeds for an explicit
// account create. Zero-value Currency and PlanName fall back to the
// configured defaults.
type CreateRequest struct {
	Identity            domain.Identity
	Profile             domain.Profile
	Currency            string
	PlanName            string
	InitialBalanceMinor int64
}

// Upsert finds the account for the identity, creating it when absent.
// A duplicate identity is not an error: the existing account is returned
// untouched, which makes the create endpoint idempotent.
func (s *Service) Upsert(ctx context.Context, req CreateRequest) (*domain.Account, bool, error) {
	identity := req.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, false, err
	}
	if req.InitialBalanceMinor < 0 {
		return nil, false, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"initial_balance_minor must be non-negative")
	}

	account, err := s.accountRepo.GetByIdentity(ctx, nil, identity)
	if err != nil {
		return nil, false, domain.WrapDatabaseError("find account", err)
	}
	if account != nil {
		return account, false, nil
	}

	account = s.buildAccount(identity, req)
	if err := s.accountRepo.Create(ctx, nil, account); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			account, err = s.accountRepo.GetByIdentity(ctx, nil, identity)
			if err != nil {
				return nil, false, domain.WrapDatabaseError(
					"find account after insert race", err)
			}
			if account == nil {
				return nil, false, domain.NewDomainError(domain.ErrorCodeWriteVerification,
					"account missing after duplicate-key insert")
			}
			return account, false, nil
		}
		return nil, false, domain.WrapDatabaseError("create account", err)
	}

	s.logger.Info("account created",
		ports.String("account_id", account.ID.String()),
		ports.String("oauth_provider", identity.OAuthProvider),
		ports.String("external_id", identity.ExternalID),
		ports.String("plan_name", account.PlanName),
		ports.Int64("free_uses", account.FreeUsesRemaining))

	return account, true, nil
}

// Get fetches the account for an identity without side effects
func (s *Service) Get(ctx context.Context, identity domain.Identity) (*domain.Account, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByIdentity(ctx, nil, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeAccountNotFound,
			fmt.Sprintf("Account not found for identity: %s/%s", identity.OAuthProvider, identity.ExternalID))
	}
	return account, nil
}

// SyncProfile updates the profile fields present in the request on an
// existing account. Absent fields never clear stored values.
func (s *Service) SyncProfile(ctx context.Context, identity domain.Identity, profile domain.Profile) error {
	if profile.IsEmpty() {
		return nil
	}

	account, err := s.Get(ctx, identity)
	if err != nil {
		return err
	}
	if err := s.accountRepo.SyncProfile(ctx, nil, account.ID, profile); err != nil {
		return domain.WrapDatabaseError("sync profile", err)
	}
	return nil
}

// buildAccount assembles a fresh active account from the request and the
// configured defaults
func (s *Service) buildAccount(identity domain.Identity, req CreateRequest) *domain.Account {
	currency := req.Currency
	if currency == "" {
		currency = s.defaults.Currency
	}
	planName := req.PlanName
	if planName == "" {
		planName = s.defaults.PlanName
	}

	account := &domain.Account{
		ID:                uuid.New(),
		OAuthProvider:     identity.OAuthProvider,
		ExternalID:        identity.ExternalID,
		WAID:              identity.WAID,
		TenantID:          identity.TenantID,
		Currency:          currency,
		PlanName:          planName,
		Status:            domain.AccountStatusActive,
		FreeUsesRemaining: s.defaults.FreeUsesPerAccount,
		BalanceMinor:      req.InitialBalanceMinor,
		CustomerEmail:     req.Profile.CustomerEmail,
		DisplayName:       req.Profile.DisplayName,
		MarketingOptIn:    req.Profile.MarketingOptIn,
		MarketingOptInAt:  req.Profile.MarketingOptInAt,
		MarketingOptInSrc: req.Profile.MarketingOptInSrc,
		UserRole:          req.Profile.UserRole,
		AgentID:           req.Profile.AgentID,
	}
	if req.Profile.MarketingOptIn != nil && *req.Profile.MarketingOptIn && req.Profile.MarketingOptInAt == nil {
		now := timeutil.Now()
		account.MarketingOptInAt = &now
	}
	return account
}
