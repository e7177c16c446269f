package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
	"github.com/kkkkikiki/referral/internal/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx      context.Context
	svc      *Service
	store    store.Store
	clock    *fakeClock
	events   *recordingPublisher
	biz      *BusinessFacade
	business *model.Business
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, memstore.New(), Options{})
}

func newFixtureWith(t *testing.T, st store.Store, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    context.Background(),
		store:  st,
		clock:  &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
	}
	opts.Now = f.clock.Now
	opts.Publisher = f.events
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(st, opts)
	require.NoError(t, err)
	f.svc = svc

	f.biz, f.business = f.newBusiness(t, "owner-1")
	return f
}

func (f *fixture) newBusiness(t *testing.T, ownerID string) (*BusinessFacade, *model.Business) {
	t.Helper()
	biz, err := f.svc.Business(Caller{ID: ownerID, Role: RoleBusiness})
	require.NoError(t, err)
	b, err := biz.RegisterBusiness(f.ctx, RegisterBusinessInput{Name: "Barber " + ownerID, Location: "Seoul"})
	require.NoError(t, err)
	return biz, b
}

func (f *fixture) consumer(t *testing.T, id string) *ConsumerFacade {
	t.Helper()
	c, err := f.svc.Consumer(Caller{ID: id, Role: RoleConsumer})
	require.NoError(t, err)
	return c
}

func (f *fixture) campaign(t *testing.T, mutate func(in *CreateCampaignInput)) *model.Campaign {
	t.Helper()
	in := CreateCampaignInput{
		Title:     "Haircut",
		ListPrice: 1000,
		Budget:    BudgetSpec{Amount: 200},
	}
	if mutate != nil {
		mutate(&in)
	}
	c, err := f.biz.CreateCampaign(f.ctx, in)
	require.NoError(t, err)
	return c
}

func (f *fixture) referral(t *testing.T, referrer string, campaignID uuid.UUID) *model.Referral {
	t.Helper()
	ref, err := f.consumer(t, referrer).CreateReferral(f.ctx, campaignID)
	require.NoError(t, err)
	return ref
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewAppliesDefaults(t *testing.T) {
	svc, err := New(memstore.New(), Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultCodeTTL, svc.codeTTL)
	require.Equal(t, DefaultMaxCodeAttempts, svc.maxCodeAttempts)
	require.Equal(t, int64(DefaultMinimumWithdrawal), svc.MinimumWithdrawal())
	require.Equal(t, 6, svc.codes.Length())

	_, err = New(memstore.New(), Options{CodeLength: -1})
	require.Error(t, err)
}

func TestFacadesRequireRole(t *testing.T) {
	svc, err := New(memstore.New(), Options{})
	require.NoError(t, err)

	_, err = svc.Consumer(Caller{})
	require.ErrorIs(t, err, ErrAuthRequired)
	_, err = svc.Consumer(Caller{ID: "u1", Role: RoleBusiness})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Business(Caller{ID: "u1", Role: RoleConsumer})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Business(Caller{ID: "", Role: RoleBusiness})
	require.ErrorIs(t, err, ErrAuthRequired)
}
