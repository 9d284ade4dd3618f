package domain

import (
	"time"

	"github.com/google/uuid"
)

// PoolSource identifies which spending pool covered a product charge
type PoolSource string

const (
	PoolSourceProductFree PoolSource = "product_free"
	PoolSourceProductPaid PoolSource = "product_paid"
	PoolSourceMainPaid    PoolSource = "main_paid"
)

// ProductConfig holds per-product pool settings. FreeInitial seeds the free
// pool when an inventory row is first created; FreeDaily is the refresh
// target for deployments that run a refresh job; PriceMinor prices one use.
type ProductConfig struct {
	ProductType string `json:"product_type"`
	FreeInitial int64  `json:"free_initial"`
	FreeDaily   int64  `json:"free_daily"`
	PriceMinor  int64  `json:"price_minor"`
}

// ProductInventory tracks per-product spending pools for one account.
// Free pools decrement by exactly 1 per use; the paid pool likewise holds
// use counts, not money.
type ProductInventory struct {
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastDailyRefresh *time.Time `json:"last_daily_refresh,omitempty"`
	AccountID        uuid.UUID  `json:"account_id"`
	ProductType      string     `json:"product_type"`
	FreeRemaining    int64      `json:"free_remaining"`
	PaidRemaining    int64      `json:"paid_remaining"`
	TotalUses        int64      `json:"total_uses"`
}

// HasProductFree returns true if the product free pool can cover one use
func (p *ProductInventory) HasProductFree() bool {
	return p.FreeRemaining >= 1
}

// HasProductPaid returns true if the product paid pool can cover one use
func (p *ProductInventory) HasProductPaid() bool {
	return p.PaidRemaining >= 1
}

// ProductUsage records one product charge with pool snapshots taken inside
// the same transaction, so the log doubles as a verification trail.
type ProductUsage struct {
	CreatedAt           time.Time  `json:"created_at"`
	RequestID           *string    `json:"request_id,omitempty"`
	ID                  uuid.UUID  `json:"usage_id"`
	AccountID           uuid.UUID  `json:"account_id"`
	ChargeID            uuid.UUID  `json:"charge_id"`
	ProductType         string     `json:"product_type"`
	IdempotencyKey      string     `json:"idempotency_key"`
	Pool                PoolSource `json:"pool"`
	CostMinor           int64      `json:"cost_minor"`
	FreeRemainingBefore int64      `json:"free_remaining_before"`
	FreeRemainingAfter  int64      `json:"free_remaining_after"`
	PaidRemainingBefore int64      `json:"paid_remaining_before"`
	PaidRemainingAfter  int64      `json:"paid_remaining_after"`
}

// ProductChargeResult is the outcome of a product charge. Replayed is true
// when the idempotency key matched a prior usage row; Charge is the mirrored
// history row and is nil on replays. HasMoreCredit reports whether another
// use of the same product would still succeed.
type ProductChargeResult struct {
	Usage         *ProductUsage
	Charge        *Charge
	Inventory     *ProductInventory
	MainPaidAfter int64
	HasMoreCredit bool
	Replayed      bool
}

// ProductBalance is the read-only pool view for one product. An account
// with no inventory row reports the config seeds; nothing is created.
type ProductBalance struct {
	ProductType     string `json:"product_type"`
	FreeRemaining   int64  `json:"free_remaining"`
	PaidRemaining   int64  `json:"paid_remaining"`
	TotalAvailable  int64  `json:"total_available"`
	PriceMinor      int64  `json:"price_minor"`
	TotalUses       int64  `json:"total_uses"`
	MainPoolCredits int64  `json:"main_pool_credits"`
}

// ProductCheck is the pre-flight answer for one product: would a charge
// succeed right now, and the pool numbers behind the verdict.
type ProductCheck struct {
	HasCredit       bool   `json:"has_credit"`
	ProductType     string `json:"product_type"`
	FreeRemaining   int64  `json:"free_remaining"`
	PaidRemaining   int64  `json:"paid_remaining"`
	MainPoolCredits int64  `json:"main_pool_credits"`
	TotalAvailable  int64  `json:"total_available"`
}
