package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEntryFromCharge(t *testing.T) {
	messageID := "msg-1"
	charge := &Charge{
		ID:           uuid.New(),
		AccountID:    uuid.New(),
		AmountMinor:  100,
		Currency:     "USD",
		Description:  "AI agent call",
		BalanceAfter: 400,
		UsedPaid:     true,
		Metadata:     ChargeMetadata{MessageID: &messageID},
		CreatedAt:    time.Now(),
	}

	entry := EntryFromCharge(charge)

	assert.Equal(t, charge.ID, entry.ID)
	assert.Equal(t, LedgerEntryCharge, entry.Kind)
	assert.Equal(t, int64(-100), entry.AmountMinor, "charges appear negated")
	assert.Equal(t, int64(400), entry.BalanceAfter)
	assert.Equal(t, "USD", entry.Currency)
	assert.Nil(t, entry.TransactionType)
	assert.Nil(t, entry.ExternalTransactionID)
	if assert.NotNil(t, entry.Metadata) {
		assert.Equal(t, &messageID, entry.Metadata.MessageID)
	}
}

func TestEntryFromCredit(t *testing.T) {
	externalID := "pi_123"
	credit := &Credit{
		ID:                    uuid.New(),
		AccountID:             uuid.New(),
		AmountMinor:           50,
		Currency:              "USD",
		Description:           "Purchased $5.00 (50 uses) via Stripe",
		Type:                  CreditTypePurchase,
		ExternalTransactionID: &externalID,
		BalanceAfter:          50,
		CreatedAt:             time.Now(),
	}

	entry := EntryFromCredit(credit)

	assert.Equal(t, credit.ID, entry.ID)
	assert.Equal(t, LedgerEntryCredit, entry.Kind)
	assert.Equal(t, int64(50), entry.AmountMinor, "credits keep their sign")
	assert.Equal(t, int64(50), entry.BalanceAfter)
	assert.Nil(t, entry.Metadata)
	if assert.NotNil(t, entry.TransactionType) {
		assert.Equal(t, CreditTypePurchase, *entry.TransactionType)
	}
	assert.Equal(t, &externalID, entry.ExternalTransactionID)
}

func TestLedgerEntry_NetMovement(t *testing.T) {
	entries := []LedgerEntry{
		EntryFromCredit(&Credit{AmountMinor: 500, Type: CreditTypePurchase}),
		EntryFromCharge(&Charge{AmountMinor: 100, UsedPaid: true}),
		EntryFromCharge(&Charge{AmountMinor: 100, UsedPaid: true}),
	}

	var net int64
	for _, e := range entries {
		net += e.AmountMinor
	}
	assert.Equal(t, int64(300), net)
}
