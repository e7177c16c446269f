package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/codegen"
	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/metrics"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const maxIdempotencyKeyLength = 128

// VerifyInput is what a cashier submits at the point of sale
type VerifyInput struct {
	Code string
	// OrderTotal is checked against the campaign's minimum spend. When nil the
	// referral's list price is used.
	OrderTotal *int64
}

// Verification tells the cashier how much to collect
type Verification struct {
	ReferralID     uuid.UUID            `json:"referral_id"`
	Code           string               `json:"code"`
	CampaignID     uuid.UUID            `json:"campaign_id"`
	CampaignTitle  string               `json:"campaign_title"`
	ListPrice      int64                `json:"list_price"`
	DiscountAmount int64                `json:"discount_amount"`
	FinalPrice     int64                `json:"final_price"`
	Status         model.ReferralStatus `json:"status"`
	ExpiresAt      time.Time            `json:"expires_at"`
}

// Settlement is the outcome of a completed redemption
type Settlement struct {
	ReferralID     uuid.UUID `json:"referral_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	ReferrerID     string    `json:"referrer_id"`
	DiscountAmount int64     `json:"discount_amount"`
	FinalPrice     int64     `json:"final_price"`
	RewardCredited int64     `json:"reward_credited"`
	PlatformFee    int64     `json:"platform_fee"`
	CompletedAt    time.Time `json:"completed_at"`
	// Replayed is set when an idempotent retry returned an earlier settlement
	Replayed bool `json:"replayed"`
}

func settlementOf(ref *model.Referral, replayed bool) *Settlement {
	s := &Settlement{
		ReferralID:     ref.ID,
		CampaignID:     ref.CampaignID,
		ReferrerID:     ref.ReferrerID,
		DiscountAmount: ref.DiscountAmount,
		FinalPrice:     ref.FinalPrice,
		RewardCredited: ref.RewardAmount,
		PlatformFee:    ref.PlatformFee,
		Replayed:       replayed,
	}
	if ref.CompletedAt != nil {
		s.CompletedAt = *ref.CompletedAt
	}
	return s
}

// VerifyCode looks up a presented code, checks it can be redeemed at the
// caller's business and moves it from pending to verified. No money moves.
func (f *BusinessFacade) VerifyCode(ctx context.Context, in VerifyInput) (*Verification, error) {
	code := codegen.Normalize(in.Code)
	if code == "" {
		return nil, invalid("code", "must not be empty")
	}
	if in.OrderTotal != nil && *in.OrderTotal <= 0 {
		return nil, invalid("order_total", "must be positive")
	}

	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}

	found, err := f.svc.store.GetReferralByCode(ctx, code)
	if err != nil {
		return nil, notFound(err, ErrCodeNotFound)
	}

	var (
		out     *Verification
		expired bool
	)
	err = f.svc.store.InTx(ctx, func(tx store.Tx) error {
		ref, err := tx.LockReferral(ctx, found.ID)
		if err != nil {
			return notFound(err, ErrCodeNotFound)
		}
		c, err := loadCampaign(ctx, tx, ref.CampaignID, false)
		if err != nil {
			return err
		}
		if c.BusinessID != b.ID {
			return ErrForbidden
		}

		now := f.svc.clock()
		switch {
		case ref.Status == model.ReferralCompleted:
			return ErrCodeAlreadyUsed
		case ref.Status == model.ReferralExpired:
			return ErrCodeExpired
		case ref.Expired(now):
			expired = true
			return expireReferral(ctx, tx, ref)
		}
		if err := checkRedeemable(c, now); err != nil {
			return err
		}

		total := ref.ListPrice
		if in.OrderTotal != nil {
			total = *in.OrderTotal
		}
		if c.MinSpend != nil && total < *c.MinSpend {
			return fmt.Errorf("order total %d below %d: %w", total, *c.MinSpend, ErrBelowMinSpend)
		}

		if ref.Status == model.ReferralPending {
			ref.Status = model.ReferralVerified
			ref.VerifiedAt = &now
			if err := tx.UpdateReferral(ctx, ref); err != nil {
				return fmt.Errorf("failed to mark referral verified: %w", err)
			}
		}

		out = &Verification{
			ReferralID:     ref.ID,
			Code:           ref.Code,
			CampaignID:     c.ID,
			CampaignTitle:  c.Title,
			ListPrice:      ref.ListPrice,
			DiscountAmount: ref.DiscountAmount,
			FinalPrice:     ref.FinalPrice,
			Status:         ref.Status,
			ExpiresAt:      ref.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrCodeExpired
	}
	return out, nil
}

// CompleteRedemption settles a verified (or pending) referral in one
// transaction: the referral is completed, the campaign usage counter is
// incremented within its limit, one earning is appended to the referrer's
// ledger and the wallet is credited. Either all of it happens or none.
//
// A retry carrying the idempotency key of the call that completed the
// referral returns the original settlement with Replayed set.
func (f *BusinessFacade) CompleteRedemption(ctx context.Context, referralID uuid.UUID, idempotencyKey string) (settlement *Settlement, err error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordRedemption(result, time.Since(start).Seconds())
	}()

	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return nil, invalid("idempotency_key", "must be at most %d bytes", maxIdempotencyKeyLength)
	}

	b, err := f.business(ctx)
	if err != nil {
		return nil, err
	}

	var (
		ref     *model.Referral
		c       *model.Campaign
		expired bool
	)
	err = f.svc.store.InTx(ctx, func(tx store.Tx) error {
		// Lock order is referral, campaign, wallet everywhere.
		var err error
		ref, err = tx.LockReferral(ctx, referralID)
		if err != nil {
			return notFound(err, ErrReferralNotFound)
		}
		c, err = loadCampaign(ctx, tx, ref.CampaignID, true)
		if err != nil {
			return err
		}
		if c.BusinessID != b.ID {
			return ErrForbidden
		}

		now := f.svc.clock()
		switch {
		case ref.Status == model.ReferralCompleted:
			if key != "" && ref.CompletionKey != nil && *ref.CompletionKey == key {
				settlement = settlementOf(ref, true)
				return nil
			}
			return ErrAlreadyCompleted
		case ref.Status == model.ReferralExpired:
			return ErrCodeExpired
		case ref.Expired(now):
			expired = true
			return expireReferral(ctx, tx, ref)
		}
		if err := checkRedeemable(c, now); err != nil {
			return err
		}

		if err := tx.IncrementCampaignUses(ctx, c.ID); err != nil {
			if errors.Is(err, store.ErrLimitReached) {
				return ErrCampaignUsageExceeded
			}
			return fmt.Errorf("failed to increment campaign uses: %w", err)
		}

		ref.Status = model.ReferralCompleted
		ref.CompletedAt = &now
		if key != "" {
			ref.CompletionKey = &key
		}
		if err := tx.UpdateReferral(ctx, ref); err != nil {
			return fmt.Errorf("failed to complete referral: %w", err)
		}

		refID, campaignID, businessID := ref.ID, c.ID, c.BusinessID
		err = tx.InsertLedgerEntry(ctx, &model.LedgerEntry{
			ID:         uuid.New(),
			UserID:     ref.ReferrerID,
			Kind:       model.EntryEarning,
			Status:     model.EntryCompleted,
			Amount:     ref.RewardAmount,
			ReferralID: &refID,
			CampaignID: &campaignID,
			BusinessID: &businessID,
			CreatedAt:  now,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicateSettlement) {
				return ErrAlreadyCompleted
			}
			return fmt.Errorf("failed to record earning: %w", err)
		}

		w, err := tx.LockWallet(ctx, ref.ReferrerID)
		if err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}
		w.Balance += ref.RewardAmount
		w.TotalEarned += ref.RewardAmount
		w.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		settlement = settlementOf(ref, false)
		return nil
	})

	switch {
	case err != nil:
		result = redemptionResult(err)
		f.svc.logger.InfoContext(ctx, "redemption rejected", "referral_id", referralID, "result", result, "error", err)
		return nil, err
	case expired:
		result = "expired"
		return nil, ErrCodeExpired
	case settlement.Replayed:
		result = "replayed"
		return settlement, nil
	}

	result = "success"
	f.svc.logger.InfoContext(ctx, "redemption completed",
		"referral_id", ref.ID, "campaign_id", c.ID, "referrer_id", ref.ReferrerID, "reward", ref.RewardAmount)
	f.svc.publish(ctx, events.TypeRedemptionCompleted, settlement.CompletedAt, events.RedemptionCompleted{
		ReferralID:     ref.ID,
		CampaignID:     c.ID,
		BusinessID:     c.BusinessID,
		ReferrerID:     ref.ReferrerID,
		Code:           ref.Code,
		DiscountAmount: ref.DiscountAmount,
		FinalPrice:     ref.FinalPrice,
		RewardAmount:   ref.RewardAmount,
		PlatformFee:    ref.PlatformFee,
	})
	return settlement, nil
}

// checkRedeemable rejects campaigns that no longer accept redemptions
func checkRedeemable(c *model.Campaign, now time.Time) error {
	if c.Status != model.CampaignActive || c.Expired(now) {
		return fmt.Errorf("campaign %s is %s: %w", c.ID, closedReason(c, now), ErrCampaignClosed)
	}
	if c.Exhausted() {
		return ErrCampaignUsageExceeded
	}
	return nil
}

// expireReferral persists a lazily detected expiry
func expireReferral(ctx context.Context, tx store.Tx, ref *model.Referral) error {
	ref.Status = model.ReferralExpired
	if err := tx.UpdateReferral(ctx, ref); err != nil {
		return fmt.Errorf("failed to expire referral: %w", err)
	}
	return nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ErrCampaignUsageExceeded):
		return "usage_exceeded"
	case errors.Is(err, ErrCampaignClosed):
		return "closed"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrReferralNotFound), errors.Is(err, ErrCampaignNotFound):
		return "rejected"
	}
	return "failed"
}
