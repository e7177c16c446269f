package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const referralColumns = `id, code, campaign_id, referrer_id, status, list_price, discount_amount,
	final_price, reward_amount, platform_fee, completion_key, created_at, expires_at,
	verified_at, completed_at`

// ReferralRepository handles referral data operations
type ReferralRepository struct{}

// NewReferralRepository creates a new referral repository
func NewReferralRepository() *ReferralRepository {
	return &ReferralRepository{}
}

// CreateReferral inserts a referral unless a live referral already holds
// its code, in which case store.ErrDuplicateCode is returned and the
// surrounding transaction stays usable.
func (r *ReferralRepository) CreateReferral(ctx context.Context, db DBExecutor, ref *model.Referral) error {
	query := `
		INSERT INTO referrals (` + referralColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (code) WHERE status <> 'expired' DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := db.GetContext(ctx, &id, query,
		ref.ID, ref.Code, ref.CampaignID, ref.ReferrerID, ref.Status, ref.ListPrice, ref.DiscountAmount,
		ref.FinalPrice, ref.RewardAmount, ref.PlatformFee, ref.CompletionKey, ref.CreatedAt, ref.ExpiresAt,
		ref.VerifiedAt, ref.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrDuplicateCode
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}

	return nil
}

// GetReferral retrieves a referral by ID
func (r *ReferralRepository) GetReferral(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Referral, error) {
	return r.getReferral(ctx, db, id, "")
}

// LockReferral retrieves a referral by ID with a row lock (SELECT FOR UPDATE)
func (r *ReferralRepository) LockReferral(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Referral, error) {
	return r.getReferral(ctx, db, id, "FOR UPDATE")
}

func (r *ReferralRepository) getReferral(ctx context.Context, db DBExecutor, id uuid.UUID, lock string) (*model.Referral, error) {
	query := `
		SELECT ` + referralColumns + `
		FROM referrals
		WHERE id = $1
	` + lock

	var ref model.Referral
	if err := db.GetContext(ctx, &ref, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return &ref, nil
}

// GetReferralByCode retrieves the referral holding a normalized code.
// A live referral wins over expired ones that reused the code.
func (r *ReferralRepository) GetReferralByCode(ctx context.Context, db DBExecutor, code string) (*model.Referral, error) {
	query := `
		SELECT ` + referralColumns + `
		FROM referrals
		WHERE code = $1
		ORDER BY (status = 'expired') ASC, created_at DESC
		LIMIT 1
	`

	var ref model.Referral
	if err := db.GetContext(ctx, &ref, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get referral by code: %w", err)
	}
	return &ref, nil
}

// UpdateReferral writes the lifecycle columns of a referral
func (r *ReferralRepository) UpdateReferral(ctx context.Context, db DBExecutor, ref *model.Referral) error {
	query := `
		UPDATE referrals
		SET status = $2, verified_at = $3, completed_at = $4, completion_key = $5
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query, ref.ID, ref.Status, ref.VerifiedAt, ref.CompletedAt, ref.CompletionKey)
	if err != nil {
		return fmt.Errorf("failed to update referral: %w", err)
	}
	return expectOneRow(result)
}

// ExpireReferrals marks pending and verified referrals past their TTL as expired
func (r *ReferralRepository) ExpireReferrals(ctx context.Context, db DBExecutor, now time.Time) (int64, error) {
	query := `
		UPDATE referrals
		SET status = 'expired'
		WHERE status IN ('pending', 'verified') AND expires_at <= $1
	`

	result, err := db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire referrals: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
