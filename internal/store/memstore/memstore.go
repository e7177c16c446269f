// Package memstore is an in-process implementation of store.Store. A single
// mutex serializes transactions, which gives serializable isolation; writes
// are journaled so a failed transaction leaves no trace.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

// Store keeps all rows in maps guarded by mu
type Store struct {
	mu sync.Mutex

	campaigns  map[uuid.UUID]model.Campaign
	referrals  map[uuid.UUID]model.Referral
	liveCodes  map[string]uuid.UUID
	settled    map[uuid.UUID]uuid.UUID
	wallets    map[string]model.Wallet
	entries    []model.LedgerEntry
	businesses map[uuid.UUID]model.Business
	owners     map[string]uuid.UUID
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		campaigns:  make(map[uuid.UUID]model.Campaign),
		referrals:  make(map[uuid.UUID]model.Referral),
		liveCodes:  make(map[string]uuid.UUID),
		settled:    make(map[uuid.UUID]uuid.UUID),
		wallets:    make(map[string]model.Wallet),
		businesses: make(map[uuid.UUID]model.Business),
		owners:     make(map[string]uuid.UUID),
	}
}

// InTx runs fn with the store lock held, undoing its writes if it fails or panics
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign(id)
}

func (s *Store) ListCampaignsByBusiness(ctx context.Context, businessID uuid.UUID) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Campaign{}
	for _, c := range s.campaigns {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	sortCampaigns(out)
	return out, nil
}

func (s *Store) ListOpenCampaigns(ctx context.Context, now time.Time, limit int) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Campaign{}
	for _, c := range s.campaigns {
		if c.Open(now) {
			out = append(out, c)
		}
	}
	sortCampaigns(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referral(id)
}

func (s *Store) GetReferralByCode(ctx context.Context, code string) (*model.Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.liveCodes[code]; ok {
		return s.referral(id)
	}

	var latest *model.Referral
	for _, r := range s.referrals {
		if r.Code != code {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) GetBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.business(id)
}

func (s *Store) GetBusinessByOwner(ctx context.Context, ownerID string) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.owners[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.business(id)
}

func (s *Store) GetDashboardStats(ctx context.Context, businessID uuid.UUID) (*model.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &model.DashboardStats{BusinessID: businessID}
	owned := make(map[uuid.UUID]struct{})
	for _, c := range s.campaigns {
		if c.BusinessID != businessID {
			continue
		}
		owned[c.ID] = struct{}{}
		stats.TotalCampaigns++
		if c.Status == model.CampaignActive {
			stats.ActiveCampaigns++
		}
		stats.TotalRedemptions += c.CurrentUses
	}
	for _, r := range s.referrals {
		if _, ok := owned[r.CampaignID]; !ok {
			continue
		}
		switch r.Status {
		case model.ReferralPending, model.ReferralVerified:
			stats.PendingReferrals++
		case model.ReferralCompleted:
			stats.TotalDiscount += r.DiscountAmount
			stats.TotalRewardsPaid += r.RewardAmount
			stats.TotalPlatformFees += r.PlatformFee
		}
	}
	return stats, nil
}

func (s *Store) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return &model.Wallet{UserID: userID}, nil
	}
	return &w, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, userID string, q model.LedgerQuery) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.LedgerEntry{}
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if q.Kind != nil && e.Kind != *q.Kind {
			continue
		}
		if q.After != nil && !before(e.Cursor(), *q.After) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[j].Cursor(), out[i].Cursor())
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) campaign(id uuid.UUID) (*model.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) referral(id uuid.UUID) (*model.Referral, error) {
	r, ok := s.referrals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) business(id uuid.UUID) (*model.Business, error) {
	b, ok := s.businesses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

// before reports whether a sorts after b in newest-first order
func before(a, b model.LedgerCursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func sortCampaigns(cs []model.Campaign) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return bytes.Compare(cs[i].ID[:], cs[j].ID[:]) > 0
	})
}
