package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const ledgerColumns = `id, user_id, kind, status, amount, referral_id, campaign_id, business_id,
	destination, created_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = pq.ErrorCode("23505")

// LedgerRepository handles wallet balances and ledger entries
type LedgerRepository struct{}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// GetWallet returns the user's wallet, or an empty one if none exists yet
func (r *LedgerRepository) GetWallet(ctx context.Context, db DBExecutor, userID string) (*model.Wallet, error) {
	query := `
		SELECT user_id, balance, total_earned, total_withdrawn, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	wallets := []model.Wallet{}
	if err := db.SelectContext(ctx, &wallets, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if len(wallets) == 0 {
		return &model.Wallet{UserID: userID}, nil
	}
	return &wallets[0], nil
}

// LockWallet creates the wallet row if needed and locks it
func (r *LedgerRepository) LockWallet(ctx context.Context, db DBExecutor, userID string) (*model.Wallet, error) {
	insert := `
		INSERT INTO wallets (user_id, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, insert, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	query := `
		SELECT user_id, balance, total_earned, total_withdrawn, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`

	var w model.Wallet
	if err := db.GetContext(ctx, &w, query, userID); err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &w, nil
}

// UpdateWallet writes the balance columns of a locked wallet
func (r *LedgerRepository) UpdateWallet(ctx context.Context, db DBExecutor, w *model.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $2, total_earned = $3, total_withdrawn = $4, updated_at = $5
		WHERE user_id = $1
	`

	result, err := db.ExecContext(ctx, query, w.UserID, w.Balance, w.TotalEarned, w.TotalWithdrawn, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return expectOneRow(result)
}

// CreateEntry appends a ledger entry. A second earning for the same
// referral yields store.ErrDuplicateSettlement.
func (r *LedgerRepository) CreateEntry(ctx context.Context, db DBExecutor, e *model.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Kind, e.Status, e.Amount, e.ReferralID, e.CampaignID, e.BusinessID,
		e.Destination, e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// ListEntries returns one keyset page of a user's ledger, newest first
func (r *LedgerRepository) ListEntries(ctx context.Context, db DBExecutor, userID string, q model.LedgerQuery) ([]model.LedgerEntry, error) {
	var (
		kind    interface{}
		afterTS interface{}
		afterID interface{}
	)
	if q.Kind != nil {
		kind = string(*q.Kind)
	}
	if q.After != nil {
		afterTS = q.After.CreatedAt
		afterID = q.After.ID
	}

	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE user_id = $1
		  AND ($2::TEXT IS NULL OR kind = $2::TEXT)
		  AND ($3::TIMESTAMPTZ IS NULL OR (created_at, id) < ($3::TIMESTAMPTZ, $4::UUID))
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`

	entries := []model.LedgerEntry{}
	if err := db.SelectContext(ctx, &entries, query, userID, kind, afterTS, afterID, q.Limit); err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
