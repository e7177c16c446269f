package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
	"github.com/kkkkikiki/referral/internal/store/memstore"
)

func TestRedemptionScenario(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	v, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: strings.ToLower(ref.Code[:3]) + "-" + ref.Code[3:] + " "})
	require.NoError(t, err)
	assert.Equal(t, ref.ID, v.ReferralID)
	assert.Equal(t, "Haircut", v.CampaignTitle)
	assert.Equal(t, int64(80), v.DiscountAmount)
	assert.Equal(t, int64(920), v.FinalPrice)
	assert.Equal(t, model.ReferralVerified, v.Status)

	s, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(80), s.RewardCredited)
	assert.Equal(t, int64(920), s.FinalPrice)
	assert.False(t, s.Replayed)
	assert.True(t, f.clock.Now().Equal(s.CompletedAt))

	got, err := f.store.GetReferral(f.ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	campaign, err := f.store.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), campaign.CurrentUses)

	bal, err := f.consumer(t, "consumer-1").GetBalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(80), bal.Available)
	assert.Equal(t, int64(80), bal.TotalEarned)

	assert.Equal(t, []string{events.TypeRedemptionCompleted}, f.events.types())

	stats, err := f.biz.DashboardStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRedemptions)
	assert.Equal(t, int64(80), stats.TotalRewardsPaid)
	assert.Equal(t, int64(40), stats.TotalPlatformFees)
}

func TestVerifyCodeFailures(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)

	_, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: "ZZZZZZ"})
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = f.biz.VerifyCode(f.ctx, VerifyInput{Code: " - "})
	assert.True(t, IsValidation(err))

	used := f.referral(t, "consumer-1", c.ID)
	_, err = f.biz.CompleteRedemption(f.ctx, used.ID, "")
	require.NoError(t, err)
	_, err = f.biz.VerifyCode(f.ctx, VerifyInput{Code: used.Code})
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)

	other, _ := f.newBusiness(t, "owner-2")
	fresh := f.referral(t, "consumer-1", c.ID)
	_, err = other.VerifyCode(f.ctx, VerifyInput{Code: fresh.Code})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyCodeEndedCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	ended := model.CampaignEnded
	_, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Status: &ended})
	require.NoError(t, err)

	_, err = f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code})
	require.ErrorIs(t, err, ErrCampaignClosed)

	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.ErrorIs(t, err, ErrCampaignClosed)
}

func TestVerifyCodeExpiredIsPersisted(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	f.clock.Advance(DefaultCodeTTL)

	_, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code})
	require.ErrorIs(t, err, ErrCodeExpired)

	got, err := f.store.GetReferral(f.ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralExpired, got.Status)

	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyCodeMinSpend(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, func(in *CreateCampaignInput) { in.MinSpend = int64Ptr(1500) })
	ref := f.referral(t, "consumer-1", c.ID)

	_, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code})
	require.ErrorIs(t, err, ErrBelowMinSpend)

	_, err = f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code, OrderTotal: int64Ptr(1499)})
	require.ErrorIs(t, err, ErrBelowMinSpend)

	v, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code, OrderTotal: int64Ptr(1500)})
	require.NoError(t, err)
	assert.Equal(t, model.ReferralVerified, v.Status)
}

func TestCompleteRedemptionTwice(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	_, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.NoError(t, err)
	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	entries, err := f.store.ListLedgerEntries(f.ctx, "consumer-1", model.LedgerQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ref.RewardAmount, entries[0].Amount)
	assert.Equal(t, ref.ID, *entries[0].ReferralID)
}

func TestCompleteRedemptionIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	first, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "pos-42-txn-9")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	replay, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "pos-42-txn-9")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, first.CompletedAt.Equal(replay.CompletedAt))
	assert.Equal(t, first.RewardCredited, replay.RewardCredited)

	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, "pos-42-txn-10")
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	bal, err := f.consumer(t, "consumer-1").GetBalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(80), bal.Available)
	assert.Len(t, f.events.types(), 1)
}

func TestCompleteRedemptionConcurrentSameReferral(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyCompleted):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	entries, err := f.store.ListLedgerEntries(f.ctx, "consumer-1", model.LedgerQuery{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	bal, err := f.consumer(t, "consumer-1").GetBalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ref.RewardAmount, bal.Available)

	got, err := f.store.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentUses)
}

func TestCompleteRedemptionLastUseRace(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, func(in *CreateCampaignInput) { in.MaxUses = int64Ptr(1) })
	refs := []*model.Referral{
		f.referral(t, "consumer-1", c.ID),
		f.referral(t, "consumer-2", c.ID),
	}
	for _, ref := range refs {
		_, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code})
		require.NoError(t, err)
	}

	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = f.biz.CompleteRedemption(f.ctx, id, "")
		}(i, ref.ID)
	}
	close(start)
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCampaignUsageExceeded):
			exceeded++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)

	got, err := f.store.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CurrentUses)

	stats, err := f.biz.DashboardStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(80), stats.TotalRewardsPaid)
	assert.Equal(t, int64(1), stats.PendingReferrals)
}

func TestCompleteRedemptionOwnership(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)
	other, _ := f.newBusiness(t, "owner-2")

	_, err := other.CompleteRedemption(f.ctx, ref.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.biz.CompleteRedemption(f.ctx, uuid.New(), "")
	require.ErrorIs(t, err, ErrReferralNotFound)

	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, strings.Repeat("k", maxIdempotencyKeyLength+1))
	assert.True(t, IsValidation(err))
}

// failingStore makes UpdateWallet fail so the settlement transaction aborts
// after every earlier write went through.
type failingStore struct {
	store.Store
}

func (s *failingStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

var errWalletDown = errors.New("wallet shard unavailable")

func (t *failingTx) UpdateWallet(ctx context.Context, w *model.Wallet) error {
	return errWalletDown
}

func TestCompleteRedemptionRollsBack(t *testing.T) {
	mem := memstore.New()
	f := newFixtureWith(t, &failingStore{Store: mem}, Options{})
	c := f.campaign(t, nil)
	ref := f.referral(t, "consumer-1", c.ID)
	_, err := f.biz.VerifyCode(f.ctx, VerifyInput{Code: ref.Code})
	require.NoError(t, err)

	_, err = f.biz.CompleteRedemption(f.ctx, ref.ID, "")
	require.ErrorIs(t, err, errWalletDown)
	assert.False(t, IsStateConflict(err))

	got, err := mem.GetReferral(f.ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralVerified, got.Status)
	assert.Nil(t, got.CompletedAt)

	campaign, err := mem.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, campaign.CurrentUses)

	entries, err := mem.ListLedgerEntries(f.ctx, "consumer-1", model.LedgerQuery{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.events.types())
}
