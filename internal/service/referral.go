package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/metrics"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

// CreateReferral mints a pending referral code for campaignID with the
// caller as referrer. The campaign's current split is snapshotted onto the
// referral. A code that collides with a live code is regenerated, up to the
// configured number of attempts.
func (f *ConsumerFacade) CreateReferral(ctx context.Context, campaignID uuid.UUID) (*model.Referral, error) {
	s := f.svc

	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}

		var ref *model.Referral
		err = s.store.InTx(ctx, func(tx store.Tx) error {
			c, err := loadCampaign(ctx, tx, campaignID, false)
			if err != nil {
				return err
			}

			now := s.clock()
			if !c.Open(now) {
				return fmt.Errorf("campaign %s is %s: %w", c.ID, closedReason(c, now), ErrCampaignClosed)
			}

			ref = &model.Referral{
				ID:             uuid.New(),
				Code:           code,
				CampaignID:     c.ID,
				ReferrerID:     f.caller.ID,
				Status:         model.ReferralPending,
				ListPrice:      c.ListPrice,
				DiscountAmount: c.DiscountAmount,
				FinalPrice:     c.FinalPrice(),
				RewardAmount:   c.ReferrerReward,
				PlatformFee:    c.PlatformFee,
				CreatedAt:      now,
				ExpiresAt:      now.Add(s.codeTTL),
			}
			if c.ExpiresAt != nil && c.ExpiresAt.Before(ref.ExpiresAt) {
				ref.ExpiresAt = c.ExpiresAt.UTC()
			}
			return tx.InsertReferral(ctx, ref)
		})

		switch {
		case err == nil:
			metrics.ReferralsMinted.Inc()
			s.logger.InfoContext(ctx, "referral created",
				"referral_id", ref.ID, "campaign_id", ref.CampaignID, "referrer_id", ref.ReferrerID, "attempt", attempt)
			return ref, nil
		case errors.Is(err, store.ErrDuplicateCode):
			metrics.CodeCollisions.Inc()
			s.logger.DebugContext(ctx, "referral code collision", "campaign_id", campaignID, "attempt", attempt)
		default:
			return nil, err
		}
	}

	s.logger.ErrorContext(ctx, "referral code generation exhausted", "campaign_id", campaignID, "attempts", s.maxCodeAttempts)
	return nil, ErrCodeGenerationExhausted
}

func closedReason(c *model.Campaign, now time.Time) string {
	switch {
	case c.Status != model.CampaignActive:
		return string(c.Status)
	case c.Expired(now):
		return "expired"
	case c.Exhausted():
		return "exhausted"
	}
	return "open"
}
