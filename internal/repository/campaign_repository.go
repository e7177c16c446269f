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

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const campaignColumns = `id, business_id, title, description, list_price, budget,
	discount_amount, referrer_reward, platform_fee, min_spend, max_uses, current_uses,
	expires_at, status, created_at, updated_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// CreateCampaign creates a new campaign
func (r *CampaignRepository) CreateCampaign(ctx context.Context, db DBExecutor, c *model.Campaign) error {
	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := db.ExecContext(ctx, query,
		c.ID, c.BusinessID, c.Title, c.Description, c.ListPrice, c.Budget,
		c.DiscountAmount, c.ReferrerReward, c.PlatformFee, c.MinSpend, c.MaxUses, c.CurrentUses,
		c.ExpiresAt, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Campaign, error) {
	return r.getCampaign(ctx, db, id, "")
}

// LockCampaign retrieves a campaign by ID and holds its row lock until the transaction ends
func (r *CampaignRepository) LockCampaign(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Campaign, error) {
	return r.getCampaign(ctx, db, id, "FOR UPDATE")
}

func (r *CampaignRepository) getCampaign(ctx context.Context, db DBExecutor, id uuid.UUID, lock string) (*model.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1
	` + lock

	var campaign model.Campaign
	err := db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// UpdateCampaign writes the mutable campaign fields
func (r *CampaignRepository) UpdateCampaign(ctx context.Context, db DBExecutor, c *model.Campaign) error {
	query := `
		UPDATE campaigns
		SET title = $2, description = $3, max_uses = $4, expires_at = $5, status = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query,
		c.ID, c.Title, c.Description, c.MaxUses, c.ExpiresAt, c.Status, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return expectOneRow(result)
}

// IncrementUses bumps current_uses, refusing to pass max_uses
func (r *CampaignRepository) IncrementUses(ctx context.Context, db DBExecutor, id uuid.UUID) error {
	query := `
		UPDATE campaigns
		SET current_uses = current_uses + 1, updated_at = $2
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)
	`

	result, err := db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment campaign uses: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrLimitReached
	}

	return nil
}

// ListByBusiness returns a business's campaigns, newest first
func (r *CampaignRepository) ListByBusiness(ctx context.Context, db DBExecutor, businessID uuid.UUID) ([]model.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE business_id = $1
		ORDER BY created_at DESC, id DESC
	`

	campaigns := []model.Campaign{}
	if err := db.SelectContext(ctx, &campaigns, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// ListOpen returns active, unexpired campaigns with remaining capacity
func (r *CampaignRepository) ListOpen(ctx context.Context, db DBExecutor, now time.Time, limit int) ([]model.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'active'
		  AND (expires_at IS NULL OR expires_at > $1)
		  AND (max_uses IS NULL OR current_uses < max_uses)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	campaigns := []model.Campaign{}
	if err := db.SelectContext(ctx, &campaigns, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list open campaigns: %w", err)
	}
	return campaigns, nil
}

// DashboardStats aggregates campaign and referral activity for a business
func (r *CampaignRepository) DashboardStats(ctx context.Context, db DBExecutor, businessID uuid.UUID) (*model.DashboardStats, error) {
	query := `
		WITH c AS (
			SELECT id, status, current_uses FROM campaigns WHERE business_id = $1
		), r AS (
			SELECT r.status, r.discount_amount, r.reward_amount, r.platform_fee
			FROM referrals r JOIN c ON c.id = r.campaign_id
		)
		SELECT
			(SELECT COUNT(*) FROM c) AS total_campaigns,
			(SELECT COUNT(*) FROM c WHERE status = 'active') AS active_campaigns,
			(SELECT COALESCE(SUM(current_uses), 0)::BIGINT FROM c) AS total_redemptions,
			(SELECT COUNT(*) FROM r WHERE status IN ('pending', 'verified')) AS pending_referrals,
			(SELECT COALESCE(SUM(discount_amount), 0)::BIGINT FROM r WHERE status = 'completed') AS total_discount,
			(SELECT COALESCE(SUM(reward_amount), 0)::BIGINT FROM r WHERE status = 'completed') AS total_rewards_paid,
			(SELECT COALESCE(SUM(platform_fee), 0)::BIGINT FROM r WHERE status = 'completed') AS total_platform_fees
	`

	var stats model.DashboardStats
	if err := db.GetContext(ctx, &stats, query, businessID); err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard stats: %w", err)
	}
	stats.BusinessID = businessID
	return &stats, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
