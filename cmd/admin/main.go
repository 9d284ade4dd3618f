package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Operator CLI for the billing ledger. Account status is plain data: the
// server never transitions it, operators flip the column here and the
// ledger refuses charges on anything not active.
type AdminCLI struct {
	ctx  context.Context
	pool *pgxpool.Pool
}

func main() {
	var (
		dbURL      = flag.String("db", "", "Database URL (defaults to DATABASE_URL)")
		action     = flag.String("action", "", "Action: show, suspend, activate, close, grant-credits, list")
		accountID  = flag.String("account", "", "Account UUID")
		provider   = flag.String("provider", "", "OAuth provider (e.g. oauth:google)")
		externalID = flag.String("external-id", "", "External user ID at the provider")
		reason     = flag.String("reason", "", "Suspension reason (for -action=suspend)")
		credits    = flag.Int64("credits", 0, "Paid credits to grant (for -action=grant-credits)")
		status     = flag.String("status", "", "Status filter (for -action=list)")
	)
	flag.Parse()

	if *action == "" {
		fmt.Println("Usage: admin -action=<action> [options]")
		fmt.Println("Actions:")
		fmt.Println("  show          - Show an account with its spending pools")
		fmt.Println("  suspend       - Suspend an account (requires -reason)")
		fmt.Println("  activate      - Reactivate a suspended account")
		fmt.Println("  close         - Permanently close an account")
		fmt.Println("  grant-credits - Add paid credits outside the purchase flow")
		fmt.Println("  list          - List accounts, optionally filtered by -status")
		fmt.Println()
		fmt.Println("Accounts are addressed by -account=<uuid> or by")
		fmt.Println("-provider=<oauth:name> -external-id=<id>.")
		os.Exit(1)
	}

	_ = godotenv.Load()
	url := *dbURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		log.Fatal("Database URL required: set -db or DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer pool.Close()

	cli := &AdminCLI{ctx: ctx, pool: pool}
	ref := accountRef{id: *accountID, provider: *provider, externalID: *externalID}

	switch *action {
	case "show":
		cli.show(ref)
	case "suspend":
		cli.suspend(ref, *reason)
	case "activate":
		cli.activate(ref)
	case "close":
		cli.close(ref)
	case "grant-credits":
		cli.grantCredits(ref, *credits)
	case "list":
		cli.list(*status)
	default:
		fmt.Printf("Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// accountRef addresses an account either by UUID or by OAuth identity
type accountRef struct {
	id         string
	provider   string
	externalID string
}

func (r accountRef) whereClause() (string, []interface{}) {
	if r.id != "" {
		id, err := uuid.Parse(r.id)
		if err != nil {
			log.Fatal("Invalid account UUID:", err)
		}
		return "id = $1", []interface{}{id}
	}
	if r.provider != "" && r.externalID != "" {
		provider := r.provider
		if !strings.HasPrefix(provider, "oauth:") {
			provider = "oauth:" + provider
		}
		return "oauth_provider = $1 AND external_id = $2", []interface{}{provider, r.externalID}
	}
	log.Fatal("Account required: set -account or -provider with -external-id")
	return "", nil
}

type accountRow struct {
	ID                uuid.UUID
	OAuthProvider     string
	ExternalID        string
	Status            string
	SuspensionReason  *string
	PlanName          string
	Currency          string
	FreeUsesRemaining int64
	PaidCredits       int64
	BalanceMinor      int64
	TotalUses         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (cli *AdminCLI) fetch(ref accountRef) accountRow {
	where, args := ref.whereClause()
	var a accountRow
	err := cli.pool.QueryRow(cli.ctx, `
		SELECT id, oauth_provider, external_id, status, suspension_reason,
		       plan_name, currency, free_uses_remaining, paid_credits,
		       balance_minor, total_uses, created_at, updated_at
		FROM accounts
		WHERE `+where,
		args...).Scan(
		&a.ID, &a.OAuthProvider, &a.ExternalID, &a.Status, &a.SuspensionReason,
		&a.PlanName, &a.Currency, &a.FreeUsesRemaining, &a.PaidCredits,
		&a.BalanceMinor, &a.TotalUses, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		log.Fatal("Account not found")
	}
	if err != nil {
		log.Fatal("Failed to query account:", err)
	}
	return a
}

func (cli *AdminCLI) show(ref accountRef) {
	a := cli.fetch(ref)

	fmt.Println("=== ACCOUNT ===")
	fmt.Printf("ID:            %s\n", a.ID)
	fmt.Printf("Identity:      %s/%s\n", a.OAuthProvider, a.ExternalID)
	fmt.Printf("Status:        %s\n", a.Status)
	if a.SuspensionReason != nil {
		fmt.Printf("Reason:        %s\n", *a.SuspensionReason)
	}
	fmt.Printf("Plan:          %s\n", a.PlanName)
	fmt.Printf("Free uses:     %d\n", a.FreeUsesRemaining)
	fmt.Printf("Paid credits:  %d\n", a.PaidCredits)
	fmt.Printf("Balance:       %d %s (minor units)\n", a.BalanceMinor, a.Currency)
	fmt.Printf("Total uses:    %d\n", a.TotalUses)
	fmt.Printf("Created:       %s\n", a.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:       %s\n", a.UpdatedAt.Format(time.RFC3339))

	// Per-product pools, if any
	rows, err := cli.pool.Query(cli.ctx, `
		SELECT product_type, free_remaining, paid_remaining, total_uses
		FROM product_inventory
		WHERE account_id = $1
		ORDER BY product_type`, a.ID)
	if err != nil {
		log.Fatal("Failed to query product inventory:", err)
	}
	defer rows.Close()

	printed := false
	for rows.Next() {
		var product string
		var free, paid, total int64
		if err := rows.Scan(&product, &free, &paid, &total); err != nil {
			log.Fatal("Failed to scan product inventory:", err)
		}
		if !printed {
			fmt.Println("\n=== PRODUCT POOLS ===")
			fmt.Printf("%-20s %-10s %-10s %-10s\n", "Product", "Free", "Paid", "Used")
			printed = true
		}
		fmt.Printf("%-20s %-10d %-10d %-10d\n", product, free, paid, total)
	}
}

func (cli *AdminCLI) suspend(ref accountRef, reason string) {
	if reason == "" {
		log.Fatal("Suspension requires -reason")
	}
	a := cli.fetch(ref)
	if a.Status == "closed" {
		log.Fatal("Cannot suspend a closed account")
	}

	_, err := cli.pool.Exec(cli.ctx, `
		UPDATE accounts
		SET status = 'suspended', suspension_reason = $2, updated_at = NOW()
		WHERE id = $1`, a.ID, reason)
	if err != nil {
		log.Fatal("Failed to suspend account:", err)
	}
	fmt.Printf("Account %s suspended: %s\n", a.ID, reason)
}

func (cli *AdminCLI) activate(ref accountRef) {
	a := cli.fetch(ref)
	if a.Status == "closed" {
		log.Fatal("Cannot reactivate a closed account")
	}

	_, err := cli.pool.Exec(cli.ctx, `
		UPDATE accounts
		SET status = 'active', suspension_reason = NULL, updated_at = NOW()
		WHERE id = $1`, a.ID)
	if err != nil {
		log.Fatal("Failed to activate account:", err)
	}
	fmt.Printf("Account %s active\n", a.ID)
}

func (cli *AdminCLI) close(ref accountRef) {
	a := cli.fetch(ref)
	if a.PaidCredits > 0 || a.BalanceMinor > 0 {
		fmt.Printf("Warning: account still holds %d paid credits and %d minor units\n",
			a.PaidCredits, a.BalanceMinor)
	}

	_, err := cli.pool.Exec(cli.ctx, `
		UPDATE accounts
		SET status = 'closed', updated_at = NOW()
		WHERE id = $1`, a.ID)
	if err != nil {
		log.Fatal("Failed to close account:", err)
	}
	fmt.Printf("Account %s closed\n", a.ID)
}

// grantCredits adds paid credits and records a manual credit row so the
// ledger history still explains every balance movement
func (cli *AdminCLI) grantCredits(ref accountRef, credits int64) {
	if credits <= 0 {
		log.Fatal("Grant requires -credits greater than zero")
	}
	a := cli.fetch(ref)
	if a.Status != "active" {
		log.Fatalf("Cannot grant credits to a %s account", a.Status)
	}

	tx, err := cli.pool.Begin(cli.ctx)
	if err != nil {
		log.Fatal("Failed to begin transaction:", err)
	}
	defer tx.Rollback(cli.ctx)

	var balanceBefore, balanceAfter int64
	err = tx.QueryRow(cli.ctx, `
		UPDATE accounts
		SET paid_credits = paid_credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING paid_credits - $2, paid_credits`, a.ID, credits).Scan(&balanceBefore, &balanceAfter)
	if err != nil {
		log.Fatal("Failed to grant credits:", err)
	}

	_, err = tx.Exec(cli.ctx, `
		INSERT INTO credits (
			id, account_id, amount_minor, currency, balance_before,
			balance_after, transaction_type, description, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, 'grant', $7, $8)`,
		uuid.New(), a.ID, credits, a.Currency, balanceBefore, balanceAfter,
		"operator credit grant", fmt.Sprintf("admin-grant-%s", uuid.New()))
	if err != nil {
		log.Fatal("Failed to record credit:", err)
	}

	if err := tx.Commit(cli.ctx); err != nil {
		log.Fatal("Failed to commit:", err)
	}
	fmt.Printf("Granted %d paid credits to %s (balance now %d)\n", credits, a.ID, balanceAfter)
}

func (cli *AdminCLI) list(status string) {
	query := `
		SELECT id, oauth_provider, external_id, status, plan_name,
		       free_uses_remaining, paid_credits, created_at
		FROM accounts`
	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := cli.pool.Query(cli.ctx, query, args...)
	if err != nil {
		log.Fatal("Failed to query accounts:", err)
	}
	defer rows.Close()

	fmt.Println("\n=== ACCOUNTS ===")
	fmt.Printf("%-38s %-30s %-10s %-10s %-6s %-6s %-20s\n",
		"ID", "Identity", "Status", "Plan", "Free", "Paid", "Created")
	fmt.Println(strings.Repeat("-", 125))

	for rows.Next() {
		var a accountRow
		if err := rows.Scan(&a.ID, &a.OAuthProvider, &a.ExternalID, &a.Status,
			&a.PlanName, &a.FreeUsesRemaining, &a.PaidCredits, &a.CreatedAt); err != nil {
			log.Fatal("Failed to scan account:", err)
		}
		fmt.Printf("%-38s %-30s %-10s %-10s %-6d %-6d %-20s\n",
			a.ID, a.OAuthProvider+"/"+a.ExternalID, a.Status, a.PlanName,
			a.FreeUsesRemaining, a.PaidCredits, a.CreatedAt.Format("2006-01-02 15:04"))
	}
}
