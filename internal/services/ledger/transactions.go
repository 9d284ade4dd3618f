package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/creditgate/billing/internal/domain"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

// ListTransactions returns one page of the unified charge and credit
// history, newest first. Unknown identities get an empty page rather than
// an error, so callers can render history without probing for existence.
func (s *Service) ListTransactions(ctx context.Context, identity domain.Identity, limit, offset int) (*domain.TransactionPage, error) {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	if offset < 0 {
		offset = 0
	}

	account, err := s.accountRepo.GetByIdentity(ctx, nil, identity)
	if err != nil {
		return nil, domain.WrapDatabaseError("find account", err)
	}
	if account == nil {
		return &domain.TransactionPage{Transactions: []domain.LedgerEntry{}}, nil
	}

	// The page's rows are the newest offset+limit entries of the merged
	// stream, so each side only needs its newest offset+limit rows; the
	// database does the bounding instead of the service holding full
	// histories in memory. Both sides and the counts come from one
	// read-only transaction so a concurrent charge cannot appear in the
	// page while its balance snapshot does not.
	fetch := offset + limit
	var entries []domain.LedgerEntry
	var total int64
	err = s.db.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		charges, err := s.chargeRepo.ListByAccount(ctx, tx, account.ID, fetch)
		if err != nil {
			return fmt.Errorf("list charges: %w", err)
		}
		credits, err := s.creditRepo.ListByAccount(ctx, tx, account.ID, fetch)
		if err != nil {
			return fmt.Errorf("list credits: %w", err)
		}
		chargeCount, err := s.chargeRepo.CountByAccount(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("count charges: %w", err)
		}
		creditCount, err := s.creditRepo.CountByAccount(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("count credits: %w", err)
		}
		total = chargeCount + creditCount

		entries = make([]domain.LedgerEntry, 0, len(charges)+len(credits))
		for _, charge := range charges {
			entries = append(entries, domain.EntryFromCharge(charge))
		}
		for _, credit := range credits {
			entries = append(entries, domain.EntryFromCredit(credit))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	page := &domain.TransactionPage{
		Transactions: []domain.LedgerEntry{},
		TotalCount:   int(total),
		HasMore:      offset+limit < int(total),
	}
	if offset < len(entries) {
		end := offset + limit
		if end > len(entries) {
			end = len(entries)
		}
		page.Transactions = entries[offset:end]
	}
	return page, nil
}
