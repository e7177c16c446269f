package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

// memTx mutates the store in place and journals an undo step per write
type memTx struct {
	s    *Store
	undo []func()
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember journals the current state of m[k] before it is overwritten
func remember[K comparable, V any](t *memTx, m map[K]V, k K) {
	old, existed := m[k]
	t.undo = append(t.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (t *memTx) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return t.s.campaign(id)
}

func (t *memTx) LockCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return t.s.campaign(id)
}

func (t *memTx) InsertCampaign(ctx context.Context, c *model.Campaign) error {
	if _, dup := t.s.campaigns[c.ID]; dup {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	remember(t, t.s.campaigns, c.ID)
	t.s.campaigns[c.ID] = *c
	return nil
}

func (t *memTx) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	cur, ok := t.s.campaigns[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Title = c.Title
	cur.Description = c.Description
	cur.MaxUses = c.MaxUses
	cur.ExpiresAt = c.ExpiresAt
	cur.Status = c.Status
	cur.UpdatedAt = c.UpdatedAt
	remember(t, t.s.campaigns, c.ID)
	t.s.campaigns[c.ID] = cur
	return nil
}

func (t *memTx) IncrementCampaignUses(ctx context.Context, id uuid.UUID) error {
	c, ok := t.s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Exhausted() {
		return store.ErrLimitReached
	}
	c.CurrentUses++
	c.UpdatedAt = time.Now().UTC()
	remember(t, t.s.campaigns, id)
	t.s.campaigns[id] = c
	return nil
}

func (t *memTx) LockReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	return t.s.referral(id)
}

func (t *memTx) InsertReferral(ctx context.Context, r *model.Referral) error {
	if _, taken := t.s.liveCodes[r.Code]; taken {
		return store.ErrDuplicateCode
	}
	remember(t, t.s.referrals, r.ID)
	t.s.referrals[r.ID] = *r
	if r.Status != model.ReferralExpired {
		remember(t, t.s.liveCodes, r.Code)
		t.s.liveCodes[r.Code] = r.ID
	}
	return nil
}

func (t *memTx) UpdateReferral(ctx context.Context, r *model.Referral) error {
	cur, ok := t.s.referrals[r.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Status = r.Status
	cur.VerifiedAt = r.VerifiedAt
	cur.CompletedAt = r.CompletedAt
	cur.CompletionKey = r.CompletionKey
	t.putReferral(cur)
	return nil
}

func (t *memTx) ExpireReferrals(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, r := range t.s.referrals {
		if r.Status != model.ReferralPending && r.Status != model.ReferralVerified {
			continue
		}
		if now.Before(r.ExpiresAt) {
			continue
		}
		r.Status = model.ReferralExpired
		t.putReferral(r)
		n++
	}
	return n, nil
}

// putReferral stores r and keeps the live code index in step with its status
func (t *memTx) putReferral(r model.Referral) {
	remember(t, t.s.referrals, r.ID)
	t.s.referrals[r.ID] = r
	if r.Status == model.ReferralExpired && t.s.liveCodes[r.Code] == r.ID {
		remember(t, t.s.liveCodes, r.Code)
		delete(t.s.liveCodes, r.Code)
	}
}

func (t *memTx) LockWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	w, ok := t.s.wallets[userID]
	if !ok {
		w = model.Wallet{UserID: userID, UpdatedAt: time.Now().UTC()}
		remember(t, t.s.wallets, userID)
		t.s.wallets[userID] = w
	}
	return &w, nil
}

func (t *memTx) UpdateWallet(ctx context.Context, w *model.Wallet) error {
	if _, ok := t.s.wallets[w.UserID]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.wallets, w.UserID)
	t.s.wallets[w.UserID] = *w
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	if e.Kind == model.EntryEarning && e.ReferralID != nil {
		if _, dup := t.s.settled[*e.ReferralID]; dup {
			return store.ErrDuplicateSettlement
		}
	}
	if e.Kind == model.EntryEarning && e.ReferralID != nil {
		remember(t, t.s.settled, *e.ReferralID)
		t.s.settled[*e.ReferralID] = e.ID
	}
	n := len(t.s.entries)
	t.undo = append(t.undo, func() { t.s.entries = t.s.entries[:n] })
	t.s.entries = append(t.s.entries, *e)
	return nil
}

func (t *memTx) LockBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	return t.s.business(id)
}

func (t *memTx) InsertBusiness(ctx context.Context, b *model.Business) error {
	if _, dup := t.s.owners[b.OwnerID]; dup {
		return store.ErrDuplicateBusiness
	}
	remember(t, t.s.businesses, b.ID)
	t.s.businesses[b.ID] = *b
	remember(t, t.s.owners, b.OwnerID)
	t.s.owners[b.OwnerID] = b.ID
	return nil
}

func (t *memTx) UpdateBusiness(ctx context.Context, b *model.Business) error {
	if _, ok := t.s.businesses[b.ID]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.businesses, b.ID)
	t.s.businesses[b.ID] = *b
	return nil
}
