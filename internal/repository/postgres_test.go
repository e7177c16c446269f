package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/database"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/repository"
	"github.com/kkkkikiki/referral/internal/service"
	"github.com/kkkkikiki/referral/internal/store"
)

// newPostgres returns a store on a throwaway schema of the database named by
// REFERRAL_TEST_DATABASE_URL. The test is skipped when the variable is unset.
func newPostgres(t *testing.T) *repository.Postgres {
	t.Helper()
	dsn := os.Getenv("REFERRAL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REFERRAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	schema := "referral_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	db, err := sqlx.Connect("postgres", withSearchPath(t, dsn, schema))
	require.NoError(t, err)
	db.SetMaxOpenConns(20)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, database.Schema())
	require.NoError(t, err)

	return repository.NewPostgres(db)
}

func withSearchPath(t *testing.T, dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func newService(t *testing.T, st store.Store) *service.Service {
	t.Helper()
	svc, err := service.New(st, service.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	return svc
}

func seedCampaign(t *testing.T, ctx context.Context, svc *service.Service, owner string, maxUses *int64) (*service.BusinessFacade, *model.Campaign) {
	t.Helper()
	biz, err := svc.Business(service.Caller{ID: owner, Role: service.RoleBusiness})
	require.NoError(t, err)
	_, err = biz.RegisterBusiness(ctx, service.RegisterBusinessInput{Name: "Shop " + owner})
	require.NoError(t, err)
	c, err := biz.CreateCampaign(ctx, service.CreateCampaignInput{
		Title:     "Haircut",
		ListPrice: 10_000,
		Budget:    service.BudgetSpec{Amount: 2_000},
		MaxUses:   maxUses,
	})
	require.NoError(t, err)
	return biz, c
}

func TestPostgresRedemptionRace(t *testing.T) {
	ctx := context.Background()
	st := newPostgres(t)
	svc := newService(t, st)

	maxUses := int64(5)
	biz, c := seedCampaign(t, ctx, svc, "owner-race", &maxUses)

	const referrals = 20
	ids := make([]uuid.UUID, 0, referrals)
	for i := 0; i < referrals; i++ {
		consumer, err := svc.Consumer(service.Caller{ID: fmt.Sprintf("consumer-%d", i%4), Role: service.RoleConsumer})
		require.NoError(t, err)
		ref, err := consumer.CreateReferral(ctx, c.ID)
		require.NoError(t, err)
		ids = append(ids, ref.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
		exhausted int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := biz.CompleteRedemption(ctx, id, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrCampaignUsageExceeded):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, maxUses, succeeded)
	assert.Equal(t, referrals-int(maxUses), exhausted)

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, maxUses, got.CurrentUses)

	var credited int64
	for i := 0; i < 4; i++ {
		w, err := st.GetWallet(ctx, fmt.Sprintf("consumer-%d", i))
		require.NoError(t, err)
		credited += w.Balance
	}
	assert.Equal(t, maxUses*c.ReferrerReward, credited)

	stats, err := biz.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxUses, stats.TotalRedemptions)
	assert.Equal(t, maxUses*c.ReferrerReward, stats.TotalRewardsPaid)
}

func TestPostgresLiveCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	st := newPostgres(t)
	svc := newService(t, st)
	_, c := seedCampaign(t, ctx, svc, "owner-codes", nil)

	now := time.Now().UTC()
	first := &model.Referral{
		ID: uuid.New(), Code: "ABC234", CampaignID: c.ID, ReferrerID: "alice",
		Status: model.ReferralPending, ListPrice: c.ListPrice, DiscountAmount: c.DiscountAmount,
		FinalPrice: c.FinalPrice(), RewardAmount: c.ReferrerReward, PlatformFee: c.PlatformFee,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	second := *first
	second.ID = uuid.New()
	second.CreatedAt = now
	second.ExpiresAt = now.Add(time.Hour)

	err := st.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertReferral(ctx, first))
		// The conflict must leave the transaction usable.
		require.ErrorIs(t, tx.InsertReferral(ctx, &second), store.ErrDuplicateCode)
		n, err := tx.ExpireReferrals(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return tx.InsertReferral(ctx, &second)
	})
	require.NoError(t, err)

	got, err := st.GetReferralByCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestPostgresDuplicateSettlement(t *testing.T) {
	ctx := context.Background()
	st := newPostgres(t)
	svc := newService(t, st)
	biz, c := seedCampaign(t, ctx, svc, "owner-settle", nil)

	consumer, err := svc.Consumer(service.Caller{ID: "bob", Role: service.RoleConsumer})
	require.NoError(t, err)
	ref, err := consumer.CreateReferral(ctx, c.ID)
	require.NoError(t, err)
	_, err = biz.CompleteRedemption(ctx, ref.ID, "k1")
	require.NoError(t, err)

	err = st.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertLedgerEntry(ctx, &model.LedgerEntry{
			ID: uuid.New(), UserID: "bob", Kind: model.EntryEarning, Status: model.EntryCompleted,
			Amount: ref.RewardAmount, ReferralID: &ref.ID, CreatedAt: time.Now().UTC(),
		})
	})
	require.ErrorIs(t, err, store.ErrDuplicateSettlement)

	again, err := biz.CompleteRedemption(ctx, ref.ID, "k1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
}

func TestPostgresLedgerPaging(t *testing.T) {
	ctx := context.Background()
	st := newPostgres(t)
	svc := newService(t, st)
	biz, c := seedCampaign(t, ctx, svc, "owner-ledger", nil)

	consumer, err := svc.Consumer(service.Caller{ID: "carol", Role: service.RoleConsumer})
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		ref, err := consumer.CreateReferral(ctx, c.ID)
		require.NoError(t, err)
		_, err = biz.CompleteRedemption(ctx, ref.ID, "")
		require.NoError(t, err)
	}

	var (
		seen  []uuid.UUID
		after *model.LedgerCursor
	)
	for {
		page, next, err := consumer.TransactionPage(ctx, service.TransactionFilter{PageSize: 3}, after)
		require.NoError(t, err)
		for _, e := range page {
			seen = append(seen, e.ID)
		}
		if next == nil {
			break
		}
		after = next
	}
	assert.Len(t, seen, 7)

	var streamed int
	for e, err := range consumer.ListTransactions(ctx, service.TransactionFilter{PageSize: 2}) {
		require.NoError(t, err)
		assert.Equal(t, seen[streamed], e.ID)
		streamed++
	}
	assert.Equal(t, 7, streamed)

	bal, err := consumer.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7*c.ReferrerReward, bal.Available)
}
