package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/creditgate/billing/internal/domain"
	"github.com/creditgate/billing/internal/domain/ports"
)

// uniqueViolation is the PostgreSQL error code for duplicate key inserts
const uniqueViolation = "23505"

// maxIdempotencyKeyLen matches the column constraint on the ledger tables
const maxIdempotencyKeyLen = 255

// normalizeCurrency validates a required ISO 4217 alpha code and returns it
// uppercased. Rejecting bad input here keeps the in-transaction currency
// guard for what it is meant to catch: a stored account row that disagrees
// with a well-formed request.
func normalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "", domain.NewDomainError(domain.ErrorCodeValidationMissingField,
			"currency is required")
	}
	if len(currency) != 3 {
		return "", domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("currency must be a 3-letter code, got %q", currency))
	}
	return currency, nil
}

// validateIdempotencyKey rejects keys the ledger tables cannot store
func validateIdempotencyKey(key string) error {
	if len(key) > maxIdempotencyKeyLen {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("idempotency_key must be at most %d characters", maxIdempotencyKeyLen))
	}
	return nil
}

// Config holds the billing defaults the ledger seeds new accounts with and
// the purchase terms it advertises when a charge is denied.
type Config struct {
	Products              map[string]domain.ProductConfig
	DefaultCurrency       string
	DefaultPlanName       string
	FreeUsesPerAccount    int64
	PaidUsesPerPurchase   int64
	PricePerPurchaseMinor int64
}

// CheckAuditor receives check decisions for post-response recording.
// Record must never block; the ledger calls it on the request path.
type CheckAuditor interface {
	Record(record *domain.CheckRecord)
}

// Service implements the credit-gating ledger: checks, charges, credits,
// and product charges. Every mutation runs under the account row lock with
// in-transaction write verification, so concurrent requests against one
// account serialize and a torn write aborts before commit.
type Service struct {
	db          ports.DBPort
	readDB      ports.DBTX
	accountRepo ports.AccountRepository
	chargeRepo  ports.ChargeRepository
	creditRepo  ports.CreditRepository
	productRepo ports.ProductRepository
	auditor     CheckAuditor
	logger      ports.Logger
	config      Config
}

// NewService creates a new ledger service
func NewService(
	db ports.DBPort,
	accountRepo ports.AccountRepository,
	chargeRepo ports.ChargeRepository,
	creditRepo ports.CreditRepository,
	productRepo ports.ProductRepository,
	auditor CheckAuditor,
	logger ports.Logger,
	config Config,
) *Service {
	return &Service{
		db:          db,
		accountRepo: accountRepo,
		chargeRepo:  chargeRepo,
		creditRepo:  creditRepo,
		productRepo: productRepo,
		auditor:     auditor,
		logger:      logger,
		config:      config,
	}
}

// WithReadPool points authorization reads (checks and balance views) at a
// replica. Mutations and their race recovery stay on the primary, and a nil
// pool leaves everything on the primary, so callers without a replica skip
// this entirely.
func (s *Service) WithReadPool(read ports.DBTX) *Service {
	s.readDB = read
	return s
}

// CheckRequest asks whether an identity may consume one use right now
type CheckRequest struct {
	Identity domain.Identity
	Profile  domain.Profile
	Context  domain.CheckContext
}

// ChargeRequest debits one use from an account's main pools
type ChargeRequest struct {
	Identity       domain.Identity
	Profile        domain.Profile
	Metadata       domain.ChargeMetadata
	Currency       string
	Description    string
	IdempotencyKey string
	AmountMinor    int64
}

// CreditRequest adds funds to an account's paid pool
type CreditRequest struct {
	ExternalTransactionID *string
	Identity              domain.Identity
	Profile               domain.Profile
	Currency              string
	Description           string
	IdempotencyKey        string
	Type                  domain.CreditType
	AmountMinor           int64
	IsTest                bool
}

// Check answers the gating question without touching the spending pools.
// Unknown identities are auto-created with the configured free allowance,
// so the first check for a well-formed identity always grants credit.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*domain.CheckDecision, error) {
	identity := req.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	account, created, err := s.getOrCreateAccount(ctx, s.readDB, identity, req.Profile)
	if err != nil {
		return nil, err
	}

	// Profile sync is best effort on the check path; the decision does not
	// depend on it
	if !created && !req.Profile.IsEmpty() {
		if err := s.accountRepo.SyncProfile(ctx, nil, account.ID, req.Profile); err != nil {
			s.logger.Warn("profile sync failed during credit check",
				ports.String("account_id", account.ID.String()),
				ports.Err(err))
		}
	}

	decision := s.decide(account)

	s.logger.Info("credit check",
		ports.String("account_id", account.ID.String()),
		ports.Bool("has_credit", decision.HasCredit),
		ports.Int64("free_uses_remaining", account.FreeUsesRemaining),
		ports.Int64("paid_credits", account.PaidCredits))

	s.auditor.Record(&domain.CheckRecord{
		ID:            uuid.New(),
		AccountID:     account.ID,
		OAuthProvider: identity.OAuthProvider,
		ExternalID:    identity.ExternalID,
		HasCredit:     decision.HasCredit,
		FreeUses:      account.FreeUsesRemaining,
		PaidCredits:   account.PaidCredits,
		Reason:        decision.Reason,
		AgentID:       req.Context.AgentID,
		ChannelID:     req.Context.ChannelID,
		RequestID:     req.Context.RequestID,
	})

	return decision, nil
}

// decide builds the check decision from current account state. Purchase
// hints appear only when buying credits is the remedy: an active account
// with empty pools.
func (s *Service) decide(account *domain.Account) *domain.CheckDecision {
	decision := &domain.CheckDecision{
		AccountID:         account.ID,
		PlanName:          account.PlanName,
		CreditsRemaining:  account.PaidCredits,
		FreeUsesRemaining: account.FreeUsesRemaining,
		TotalUses:         account.TotalUses,
	}

	switch account.Status {
	case domain.AccountStatusSuspended:
		reason := domain.CheckReasonSuspended
		decision.Reason = &reason
	case domain.AccountStatusClosed:
		reason := domain.CheckReasonClosed
		decision.Reason = &reason
	default:
		if account.HasFreeUse() || account.PaidCredits > 0 {
			decision.HasCredit = true
			break
		}
		reason := domain.CheckReasonExhausted
		decision.Reason = &reason
		decision.PurchaseRequired = true
		price := s.config.PricePerPurchaseMinor
		uses := s.config.PaidUsesPerPurchase
		decision.PurchasePriceMinor = &price
		decision.PurchaseUses = &uses
	}

	return decision
}

// Charge debits the account's main pools for one use. Free uses burn first
// at a flat one per charge; otherwise paid credits cover the full
// amount_minor, or the charge is denied.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*domain.ChargeResult, error) {
	identity := req.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"amount_minor must be positive")
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	req.Currency = currency
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
		existing, err := s.chargeRepo.GetByIdempotencyKey(ctx, nil, account.ID, key)
		if err != nil {
			return nil, domain.WrapDatabaseError("check idempotency key", err)
		}
		if existing != nil {
			s.logger.Info("charge replayed for idempotency key",
				ports.String("account_id", account.ID.String()),
				ports.String("idempotency_key", key),
				ports.String("charge_id", existing.ID.String()))
			return &domain.ChargeResult{Charge: existing, Replayed: true}, nil
		}
	}

	var result *domain.ChargeResult
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.accountRepo.GetByIDForUpdate(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if locked == nil {
			return accountNotFound(identity)
		}

		// A racing twin may have committed between the pre-check and the lock
		if req.IdempotencyKey != "" {
			existing, err := s.chargeRepo.GetByIdempotencyKey(ctx, tx, locked.ID, key)
			if err != nil {
				return fmt.Errorf("recheck idempotency key: %w", err)
			}
			if existing != nil {
				result = &domain.ChargeResult{Charge: existing, Replayed: true}
				return nil
			}
		}

		// The locked row is authoritative for status and currency
		if err := locked.StatusError(); err != nil {
			return err
		}
		if locked.Currency != req.Currency {
			return domain.NewDomainError(domain.ErrorCodeDataIntegrity,
				fmt.Sprintf("Currency mismatch: account=%s, charge=%s", locked.Currency, req.Currency))
		}

		usedFree := false
		usedPaid := false
		switch {
		case locked.HasFreeUse():
			locked.FreeUsesRemaining--
			usedFree = true
		case locked.CanCoverFromPaid(req.AmountMinor):
			locked.PaidCredits -= req.AmountMinor
			usedPaid = true
		default:
			return s.insufficientCredits(locked.PaidCredits, req.AmountMinor)
		}
		locked.TotalUses++

		charge := &domain.Charge{
			ID:             uuid.New(),
			AccountID:      locked.ID,
			AmountMinor:    req.AmountMinor,
			Currency:       req.Currency,
			Description:    req.Description,
			IdempotencyKey: key,
			UsedFree:       usedFree,
			UsedPaid:       usedPaid,
			BalanceAfter:   locked.PaidCredits,
			Metadata:       req.Metadata,
		}
		if err := s.chargeRepo.Create(ctx, tx, charge); err != nil {
			return fmt.Errorf("create charge: %w", err)
		}

		written, err := s.verifyChargeWritten(ctx, tx, charge)
		if err != nil {
			return err
		}

		if !req.Profile.IsEmpty() {
			if err := s.accountRepo.SyncProfile(ctx, tx, locked.ID, req.Profile); err != nil {
				return fmt.Errorf("sync profile: %w", err)
			}
		}
		if err := s.accountRepo.UpdatePools(ctx, tx, locked); err != nil {
			return fmt.Errorf("update account pools: %w", err)
		}
		if err := s.verifyPoolsWritten(ctx, tx, locked); err != nil {
			return err
		}

		result = &domain.ChargeResult{Charge: written}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("charge created",
			ports.String("account_id", result.Charge.AccountID.String()),
			ports.String("charge_id", result.Charge.ID.String()),
			ports.Int64("amount_minor", result.Charge.AmountMinor),
			ports.Bool("used_free", result.Charge.UsedFree),
			ports.Bool("used_paid", result.Charge.UsedPaid),
			ports.Int64("balance_after", result.Charge.BalanceAfter))
	}
	return result, nil
}

// Credit adds amount_minor to the account's paid pool. Credits are accepted
// regardless of account status so purchased funds are never bounced, and
// unknown identities get an account on the fly.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*domain.CreditResult, error) {
	identity := req.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid,
			"amount_minor must be positive")
	}
	if !req.Type.IsValid() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("unknown transaction type %q", req.Type))
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	req.Currency = currency
	if err := validateIdempotencyKey(req.IdempotencyKey); err != nil {
		return nil, err
	}

	account, _, err := s.getOrCreateAccount(ctx, nil, identity, req.Profile)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	} else {
		existing, err := s.creditRepo.GetByIdempotencyKey(ctx, nil, account.ID, key)
		if err != nil {
			return nil, domain.WrapDatabaseError("check idempotency key", err)
		}
		if existing != nil {
			s.logger.Info("credit replayed for idempotency key",
				ports.String("account_id", account.ID.String()),
				ports.String("idempotency_key", key),
				ports.String("credit_id", existing.ID.String()))
			return &domain.CreditResult{Credit: existing, Replayed: true}, nil
		}
	}

	var result *domain.CreditResult
	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.accountRepo.GetByIDForUpdate(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if locked == nil {
			return accountNotFound(identity)
		}

		if req.IdempotencyKey != "" {
			existing, err := s.creditRepo.GetByIdempotencyKey(ctx, tx, locked.ID, key)
			if err != nil {
				return fmt.Errorf("recheck idempotency key: %w", err)
			}
			if existing != nil {
				result = &domain.CreditResult{Credit: existing, Replayed: true}
				return nil
			}
		}

		// No status gate here: suspended and closed accounts still take funds
		if locked.Currency != req.Currency {
			return domain.NewDomainError(domain.ErrorCodeDataIntegrity,
				fmt.Sprintf("Currency mismatch: account=%s, credit=%s", locked.Currency, req.Currency))
		}

		locked.PaidCredits += req.AmountMinor

		credit := &domain.Credit{
			ID:                    uuid.New(),
			AccountID:             locked.ID,
			AmountMinor:           req.AmountMinor,
			Currency:              req.Currency,
			Description:           req.Description,
			IdempotencyKey:        key,
			Type:                  req.Type,
			ExternalTransactionID: req.ExternalTransactionID,
			BalanceAfter:          locked.PaidCredits,
			IsTest:                req.IsTest,
		}
		if err := s.creditRepo.Create(ctx, tx, credit); err != nil {
			// The partial unique index on external_transaction_id makes a
			// double-funded payment surface here instead of double crediting
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return domain.WrapError(domain.ErrorCodeIdempotencyConflict,
					"credit already recorded for this payment", err)
			}
			return fmt.Errorf("create credit: %w", err)
		}

		written, err := s.creditRepo.GetByID(ctx, tx, credit.ID)
		if err != nil {
			return fmt.Errorf("verify credit: %w", err)
		}
		if written == nil {
			return domain.NewDomainError(domain.ErrorCodeWriteVerification,
				fmt.Sprintf("credit %s not found after insert", credit.ID))
		}

		if !req.Profile.IsEmpty() {
			if err := s.accountRepo.SyncProfile(ctx, tx, locked.ID, req.Profile); err != nil {
				return fmt.Errorf("sync profile: %w", err)
			}
		}
		if err := s.accountRepo.UpdatePools(ctx, tx, locked); err != nil {
			return fmt.Errorf("update account pools: %w", err)
		}
		if err := s.verifyPoolsWritten(ctx, tx, locked); err != nil {
			return err
		}

		result = &domain.CreditResult{Credit: written}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("credits added",
			ports.String("account_id", result.Credit.AccountID.String()),
			ports.String("credit_id", result.Credit.ID.String()),
			ports.String("transaction_type", string(result.Credit.Type)),
			ports.Int64("amount_minor", result.Credit.AmountMinor),
			ports.Int64("balance_after", result.Credit.BalanceAfter))
	}
	return result, nil
}

// getOrCreateAccount resolves the identity, inserting a fresh account with
// the configured free allowance when none exists. Losing the insert race to
// a concurrent request is fine: the winner's row is re-fetched and used.
// The probe may run on a replica via db; the insert and the race recovery
// always hit the primary, so replication lag can cost a wasted insert
// attempt but never a wrong answer.
func (s *Service) getOrCreateAccount(ctx context.Context, db ports.DBTX, identity domain.Identity, profile domain.Profile) (*domain.Account, bool, error) {
	account, err := s.accountRepo.GetByIdentity(ctx, db, identity)
	if err != nil {
		return nil, false, domain.WrapDatabaseError("find account", err)
	}
	if account != nil {
		return account, false, nil
	}

	account = s.newAccount(identity, profile)
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

	s.logger.Info("account auto-created",
		ports.String("account_id", account.ID.String()),
		ports.String("oauth_provider", identity.OAuthProvider),
		ports.String("external_id", identity.ExternalID),
		ports.Int64("free_uses", s.config.FreeUsesPerAccount))

	return account, true, nil
}

// newAccount builds a fresh active account seeded from config defaults
func (s *Service) newAccount(identity domain.Identity, profile domain.Profile) *domain.Account {
	account := &domain.Account{
		ID:                uuid.New(),
		OAuthProvider:     identity.OAuthProvider,
		ExternalID:        identity.ExternalID,
		WAID:              identity.WAID,
		TenantID:          identity.TenantID,
		Currency:          s.config.DefaultCurrency,
		PlanName:          s.config.DefaultPlanName,
		Status:            domain.AccountStatusActive,
		FreeUsesRemaining: s.config.FreeUsesPerAccount,
		CustomerEmail:     profile.CustomerEmail,
		DisplayName:       profile.DisplayName,
		MarketingOptIn:    profile.MarketingOptIn,
		MarketingOptInAt:  profile.MarketingOptInAt,
		MarketingOptInSrc: profile.MarketingOptInSrc,
		UserRole:          profile.UserRole,
		AgentID:           profile.AgentID,
	}
	if profile.MarketingOptIn != nil && *profile.MarketingOptIn && profile.MarketingOptInAt == nil {
		now := time.Now().UTC()
		account.MarketingOptInAt = &now
	}
	return account
}

// verifyChargeWritten re-reads the charge inside the transaction and checks
// it against the computed amounts
func (s *Service) verifyChargeWritten(ctx context.Context, tx pgx.Tx, charge *domain.Charge) (*domain.Charge, error) {
	written, err := s.chargeRepo.GetByID(ctx, tx, charge.ID)
	if err != nil {
		return nil, fmt.Errorf("verify charge: %w", err)
	}
	if written == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeWriteVerification,
			fmt.Sprintf("charge %s not found after insert", charge.ID))
	}
	if written.AmountMinor != charge.AmountMinor || written.BalanceAfter != charge.BalanceAfter {
		return nil, domain.NewDomainError(domain.ErrorCodeWriteVerification,
			"charge row does not match computed amounts").
			WithDetail("expected_amount", charge.AmountMinor).
			WithDetail("observed_amount", written.AmountMinor).
			WithDetail("expected_balance_after", charge.BalanceAfter).
			WithDetail("observed_balance_after", written.BalanceAfter)
	}
	return written, nil
}

// verifyPoolsWritten re-reads the account inside the transaction and checks
// the stored pools against the computed ones
func (s *Service) verifyPoolsWritten(ctx context.Context, tx pgx.Tx, expected *domain.Account) error {
	observed, err := s.accountRepo.GetByID(ctx, tx, expected.ID)
	if err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	if observed == nil {
		return domain.NewDomainError(domain.ErrorCodeWriteVerification,
			fmt.Sprintf("account %s not found after pool update", expected.ID))
	}
	if observed.FreeUsesRemaining != expected.FreeUsesRemaining ||
		observed.PaidCredits != expected.PaidCredits ||
		observed.TotalUses != expected.TotalUses {
		return domain.NewDomainError(domain.ErrorCodeWriteVerification,
			"account pools do not match computed balances").
			WithDetail("expected_free", expected.FreeUsesRemaining).
			WithDetail("observed_free", observed.FreeUsesRemaining).
			WithDetail("expected_paid", expected.PaidCredits).
			WithDetail("observed_paid", observed.PaidCredits)
	}
	return nil
}

// insufficientCredits builds the denial error with the purchase terms the
// caller can surface to the user
func (s *Service) insufficientCredits(balance, required int64) error {
	return domain.NewDomainError(domain.ErrorCodeInsufficientCredits,
		fmt.Sprintf("Insufficient credits. Balance: %d, Required: %d", balance, required)).
		WithDetail("balance", balance).
		WithDetail("required", required).
		WithDetail("purchase_required", true).
		WithDetail("purchase_price_minor", s.config.PricePerPurchaseMinor).
		WithDetail("purchase_uses", s.config.PaidUsesPerPurchase)
}

func accountNotFound(identity domain.Identity) error {
	return domain.NewDomainError(domain.ErrorCodeAccountNotFound,
		fmt.Sprintf("Account not found for identity: %s/%s", identity.OAuthProvider, identity.ExternalID))
}
