package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/money"
	"github.com/kkkkikiki/referral/internal/store"
)

// BudgetSpec is either an absolute amount or a percentage of the list price.
// Exactly one of the two must be set.
type BudgetSpec struct {
	Amount  int64
	Percent *decimal.Decimal
}

// CreateCampaignInput holds the fields of a new campaign
type CreateCampaignInput struct {
	Title       string
	Description string
	ListPrice   int64
	Budget      BudgetSpec
	MinSpend    *int64
	MaxUses     *int64
	ExpiresAt   *time.Time
}

// resolveBudget turns spec into an absolute budget and checks 0 < budget < listPrice
func resolveBudget(listPrice int64, spec BudgetSpec) (int64, error) {
	if listPrice <= 0 {
		return 0, invalid("list_price", "must be positive")
	}

	budget := spec.Amount
	switch {
	case spec.Percent != nil && spec.Amount != 0:
		return 0, invalid("budget", "set either an amount or a percentage, not both")
	case spec.Percent != nil:
		if !spec.Percent.IsPositive() || spec.Percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return 0, invalid("budget_percent", "must be between 0 and 100 exclusive")
		}
		b, err := money.BudgetFromPercent(listPrice, *spec.Percent)
		if err != nil {
			return 0, invalid("budget_percent", "%v", err)
		}
		budget = b
	}

	if budget <= 0 {
		return 0, invalid("budget", "must be positive")
	}
	if budget >= listPrice {
		return 0, invalid("budget", "must be less than the list price %d", listPrice)
	}
	return budget, nil
}

// CreateCampaign creates an active campaign for the caller's business
func (f *BusinessFacade) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}

	budget, err := resolveBudget(in.ListPrice, in.Budget)
	if err != nil {
		return nil, err
	}
	split, err := money.SplitBudget(budget)
	if err != nil {
		return nil, invalid("budget", "%v", err)
	}

	now := f.svc.clock()
	if in.MinSpend != nil && *in.MinSpend < 0 {
		return nil, invalid("min_spend", "must not be negative")
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return nil, invalid("max_uses", "must be positive")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, invalid("expires_at", "must be in the future")
	}

	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:             uuid.New(),
		BusinessID:     b.ID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		ListPrice:      in.ListPrice,
		Budget:         split.Budget,
		DiscountAmount: split.DiscountAmount,
		ReferrerReward: split.ReferrerReward,
		PlatformFee:    split.PlatformFee,
		MinSpend:       in.MinSpend,
		MaxUses:        in.MaxUses,
		ExpiresAt:      utcPtr(in.ExpiresAt),
		Status:         model.CampaignActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = f.svc.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertCampaign(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	f.svc.logger.InfoContext(ctx, "campaign created",
		"campaign_id", c.ID, "business_id", c.BusinessID, "budget", c.Budget,
		"discount", c.DiscountAmount, "reward", c.ReferrerReward, "platform_fee", c.PlatformFee)
	return c, nil
}

// UpdateCampaign applies patch to one of the caller's campaigns. The list
// price and budget are frozen; ended is terminal.
func (f *BusinessFacade) UpdateCampaign(ctx context.Context, id uuid.UUID, patch model.CampaignPatch) (*model.Campaign, error) {
	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}

	var out *model.Campaign
	err = f.svc.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCampaign(ctx, id)
		if err != nil {
			return notFound(err, ErrCampaignNotFound)
		}
		if c.BusinessID != b.ID {
			return ErrForbidden
		}
		if err := applyCampaignPatch(c, patch); err != nil {
			return err
		}
		c.UpdatedAt = f.svc.clock()
		if err := tx.UpdateCampaign(ctx, c); err != nil {
			return notFound(err, ErrCampaignNotFound)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.svc.logger.InfoContext(ctx, "campaign updated", "campaign_id", out.ID, "status", out.Status)
	return out, nil
}

func applyCampaignPatch(c *model.Campaign, patch model.CampaignPatch) error {
	if patch.ListPrice != nil && *patch.ListPrice != c.ListPrice {
		return &ImmutableFieldError{Field: "list_price"}
	}
	if patch.Budget != nil && *patch.Budget != c.Budget {
		return &ImmutableFieldError{Field: "budget"}
	}

	if patch.Status != nil {
		next := *patch.Status
		if !next.Valid() {
			return invalid("status", "unknown status %q", next)
		}
		if c.Status == model.CampaignEnded && next != model.CampaignEnded {
			return fmt.Errorf("campaign %s has ended: %w", c.ID, ErrCampaignClosed)
		}
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return invalid("title", "must not be empty")
		}
		c.Title = title
	}
	if patch.Description != nil {
		c.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.MaxUses != nil {
		if m := *patch.MaxUses; m != nil {
			if *m <= 0 {
				return invalid("max_uses", "must be positive")
			}
			if *m < c.CurrentUses {
				return invalid("max_uses", "must not be below current uses %d", c.CurrentUses)
			}
		}
		c.MaxUses = *patch.MaxUses
	}
	if patch.ExpiresAt != nil {
		c.ExpiresAt = utcPtr(*patch.ExpiresAt)
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	return nil
}

// ListCampaigns returns the caller's campaigns, newest first
func (f *BusinessFacade) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := f.svc.store.ListCampaignsByBusiness(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// ListActiveCampaigns returns campaigns a consumer can refer to right now
func (f *ConsumerFacade) ListActiveCampaigns(ctx context.Context, limit int) ([]model.Campaign, error) {
	if limit <= 0 || limit > DefaultOpenCampaignLimit {
		limit = DefaultOpenCampaignLimit
	}
	campaigns, err := f.svc.store.ListOpenCampaigns(ctx, f.svc.clock(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// loadCampaign reads a campaign inside tx, mapping a miss onto ErrCampaignNotFound
func loadCampaign(ctx context.Context, tx store.Tx, id uuid.UUID, lock bool) (*model.Campaign, error) {
	var (
		c   *model.Campaign
		err error
	)
	if lock {
		c, err = tx.LockCampaign(ctx, id)
	} else {
		c, err = tx.GetCampaign(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	return c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
