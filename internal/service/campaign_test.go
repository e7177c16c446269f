package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/model"
)

func TestCreateCampaignFixedBudget(t *testing.T) {
	f := newFixture(t)

	c := f.campaign(t, nil)

	assert.Equal(t, int64(200), c.Budget)
	assert.Equal(t, int64(80), c.DiscountAmount)
	assert.Equal(t, int64(80), c.ReferrerReward)
	assert.Equal(t, int64(40), c.PlatformFee)
	assert.Equal(t, int64(920), c.FinalPrice())
	assert.Equal(t, model.CampaignActive, c.Status)
	assert.Zero(t, c.CurrentUses)
	assert.Equal(t, f.business.ID, c.BusinessID)
}

func TestCreateCampaignPercentBudget(t *testing.T) {
	f := newFixture(t)
	pct := decimal.NewFromInt(20)

	c := f.campaign(t, func(in *CreateCampaignInput) {
		in.Budget = BudgetSpec{Percent: &pct}
	})

	assert.Equal(t, int64(200), c.Budget)
	assert.Equal(t, int64(80), c.DiscountAmount)
	assert.Equal(t, int64(80), c.ReferrerReward)
	assert.Equal(t, int64(40), c.PlatformFee)
}

func TestCreateCampaignSplitSumsToBudget(t *testing.T) {
	f := newFixture(t)

	for _, budget := range []int64{1, 3, 7, 99, 333, 12345} {
		c := f.campaign(t, func(in *CreateCampaignInput) {
			in.ListPrice = 20000
			in.Budget = BudgetSpec{Amount: budget}
		})
		assert.Equal(t, budget, c.DiscountAmount+c.ReferrerReward+c.PlatformFee, "budget %d", budget)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	hundred := decimal.NewFromInt(100)
	twenty := decimal.NewFromInt(20)
	past := f.clock.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		in    CreateCampaignInput
		field string
	}{
		{"empty title", CreateCampaignInput{Title: "  ", ListPrice: 1000, Budget: BudgetSpec{Amount: 200}}, "title"},
		{"zero list price", CreateCampaignInput{Title: "x", ListPrice: 0, Budget: BudgetSpec{Amount: 200}}, "list_price"},
		{"zero budget", CreateCampaignInput{Title: "x", ListPrice: 1000}, "budget"},
		{"budget equals price", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 1000}}, "budget"},
		{"budget above price", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 1500}}, "budget"},
		{"both budget forms", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 200, Percent: &twenty}}, "budget"},
		{"percent of 100", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Percent: &hundred}}, "budget_percent"},
		{"zero max uses", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 200}, MaxUses: int64Ptr(0)}, "max_uses"},
		{"negative min spend", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 200}, MinSpend: int64Ptr(-1)}, "min_spend"},
		{"expiry in the past", CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 200}, ExpiresAt: &past}, "expires_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.biz.CreateCampaign(f.ctx, tt.in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateCampaignRequiresRegisteredBusiness(t *testing.T) {
	f := newFixture(t)
	stranger, err := f.svc.Business(Caller{ID: "owner-unknown", Role: RoleBusiness})
	require.NoError(t, err)

	_, err = stranger.CreateCampaign(f.ctx, CreateCampaignInput{Title: "x", ListPrice: 1000, Budget: BudgetSpec{Amount: 200}})
	require.ErrorIs(t, err, ErrBusinessNotFound)
	assert.True(t, IsNotFound(err))
}

func TestUpdateCampaignMutableFields(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)

	title := "Premium haircut"
	limit := int64Ptr(10)
	expires := f.clock.Now().Add(48 * time.Hour)
	expiresPtr := &expires
	paused := model.CampaignPaused

	updated, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{
		Title:     &title,
		MaxUses:   &limit,
		ExpiresAt: &expiresPtr,
		Status:    &paused,
		ListPrice: int64Ptr(c.ListPrice),
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, int64(10), *updated.MaxUses)
	assert.True(t, updated.ExpiresAt.Equal(expires))
	assert.Equal(t, model.CampaignPaused, updated.Status)
	assert.Equal(t, c.Budget, updated.Budget)

	var unlimited *int64
	updated, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{MaxUses: &unlimited})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxUses)
}

func TestUpdateCampaignRejectsFinancialChanges(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)

	_, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{ListPrice: int64Ptr(2000)})
	var ie *ImmutableFieldError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "list_price", ie.Field)

	_, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Budget: int64Ptr(300)})
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "budget", ie.Field)

	got, err := f.store.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.ListPrice)
	assert.Equal(t, int64(200), got.Budget)
}

func TestUpdateCampaignEndedIsTerminal(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	ended, active := model.CampaignEnded, model.CampaignActive

	_, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Status: &ended})
	require.NoError(t, err)

	_, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Status: &active})
	require.ErrorIs(t, err, ErrCampaignClosed)
	assert.True(t, IsStateConflict(err))
}

func TestUpdateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	empty := "   "
	bogus := model.CampaignStatus("archived")
	zero := int64Ptr(0)

	_, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Title: &empty})
	assert.True(t, IsValidation(err))
	_, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Status: &bogus})
	assert.True(t, IsValidation(err))
	_, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{MaxUses: &zero})
	assert.True(t, IsValidation(err))
}

func TestUpdateCampaignMaxUsesNotBelowCurrentUses(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	for _, id := range []string{"c1", "c2"} {
		ref := f.referral(t, id, c.ID)
		_, err := f.biz.CompleteRedemption(f.ctx, ref.ID, "")
		require.NoError(t, err)
	}

	one := int64Ptr(1)
	_, err := f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{MaxUses: &one})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "max_uses", ve.Field)
}

func TestUpdateCampaignOwnership(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, nil)
	other, _ := f.newBusiness(t, "owner-2")
	title := "hijacked"

	_, err := other.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{Title: &title})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.biz.UpdateCampaign(f.ctx, c.ID, model.CampaignPatch{})
	require.NoError(t, err)

	_, err = f.biz.UpdateCampaign(f.ctx, f.business.ID, model.CampaignPatch{Title: &title})
	require.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestListCampaigns(t *testing.T) {
	f := newFixture(t)
	first := f.campaign(t, nil)
	f.clock.Advance(time.Minute)
	second := f.campaign(t, func(in *CreateCampaignInput) { in.Title = "Shave" })
	f.clock.Advance(time.Minute)
	third := f.campaign(t, func(in *CreateCampaignInput) { in.Title = "Color" })

	other, _ := f.newBusiness(t, "owner-2")
	_, err := other.CreateCampaign(f.ctx, CreateCampaignInput{Title: "Other", ListPrice: 500, Budget: BudgetSpec{Amount: 50}})
	require.NoError(t, err)

	own, err := f.biz.ListCampaigns(f.ctx)
	require.NoError(t, err)
	require.Len(t, own, 3)
	assert.Equal(t, third.ID, own[0].ID)
	assert.Equal(t, first.ID, own[2].ID)

	paused := model.CampaignPaused
	_, err = f.biz.UpdateCampaign(f.ctx, second.ID, model.CampaignPatch{Status: &paused})
	require.NoError(t, err)

	open, err := f.consumer(t, "c1").ListActiveCampaigns(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, open, 3)
	for _, c := range open {
		assert.NotEqual(t, second.ID, c.ID)
	}
}
