package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

// Postgres is the PostgreSQL-backed store. Concurrency control relies on row
// locks taken by the Lock* methods and on the unique indexes of the schema.
type Postgres struct {
	db           *sqlx.DB
	campaignRepo *CampaignRepository
	referralRepo *ReferralRepository
	ledgerRepo   *LedgerRepository
	businessRepo *BusinessRepository
}

var _ store.Store = (*Postgres)(nil)

// NewPostgres creates a store over an open connection pool
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:           db,
		campaignRepo: NewCampaignRepository(),
		referralRepo: NewReferralRepository(),
		ledgerRepo:   NewLedgerRepository(),
		businessRepo: NewBusinessRepository(),
	}
}

// InTx runs fn inside a read committed transaction
func (p *Postgres) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, p: p}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to database.DB
func (p *Postgres) Close() error {
	return nil
}

func (p *Postgres) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return p.campaignRepo.GetCampaign(ctx, p.db, id)
}

func (p *Postgres) ListCampaignsByBusiness(ctx context.Context, businessID uuid.UUID) ([]model.Campaign, error) {
	return p.campaignRepo.ListByBusiness(ctx, p.db, businessID)
}

func (p *Postgres) ListOpenCampaigns(ctx context.Context, now time.Time, limit int) ([]model.Campaign, error) {
	return p.campaignRepo.ListOpen(ctx, p.db, now, limit)
}

func (p *Postgres) GetReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	return p.referralRepo.GetReferral(ctx, p.db, id)
}

func (p *Postgres) GetReferralByCode(ctx context.Context, code string) (*model.Referral, error) {
	return p.referralRepo.GetReferralByCode(ctx, p.db, code)
}

func (p *Postgres) GetBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	return p.businessRepo.GetBusiness(ctx, p.db, id)
}

func (p *Postgres) GetBusinessByOwner(ctx context.Context, ownerID string) (*model.Business, error) {
	return p.businessRepo.GetBusinessByOwner(ctx, p.db, ownerID)
}

func (p *Postgres) GetDashboardStats(ctx context.Context, businessID uuid.UUID) (*model.DashboardStats, error) {
	return p.campaignRepo.DashboardStats(ctx, p.db, businessID)
}

func (p *Postgres) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return p.ledgerRepo.GetWallet(ctx, p.db, userID)
}

func (p *Postgres) ListLedgerEntries(ctx context.Context, userID string, q model.LedgerQuery) ([]model.LedgerEntry, error) {
	return p.ledgerRepo.ListEntries(ctx, p.db, userID, q)
}

// pgTx binds the repositories to one *sqlx.Tx
type pgTx struct {
	tx *sqlx.Tx
	p  *Postgres
}

func (t *pgTx) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return t.p.campaignRepo.GetCampaign(ctx, t.tx, id)
}

func (t *pgTx) LockCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return t.p.campaignRepo.LockCampaign(ctx, t.tx, id)
}

func (t *pgTx) InsertCampaign(ctx context.Context, c *model.Campaign) error {
	return t.p.campaignRepo.CreateCampaign(ctx, t.tx, c)
}

func (t *pgTx) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	return t.p.campaignRepo.UpdateCampaign(ctx, t.tx, c)
}

func (t *pgTx) IncrementCampaignUses(ctx context.Context, id uuid.UUID) error {
	return t.p.campaignRepo.IncrementUses(ctx, t.tx, id)
}

func (t *pgTx) LockReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	return t.p.referralRepo.LockReferral(ctx, t.tx, id)
}

func (t *pgTx) InsertReferral(ctx context.Context, r *model.Referral) error {
	return t.p.referralRepo.CreateReferral(ctx, t.tx, r)
}

func (t *pgTx) UpdateReferral(ctx context.Context, r *model.Referral) error {
	return t.p.referralRepo.UpdateReferral(ctx, t.tx, r)
}

func (t *pgTx) ExpireReferrals(ctx context.Context, now time.Time) (int64, error) {
	return t.p.referralRepo.ExpireReferrals(ctx, t.tx, now)
}

func (t *pgTx) LockWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return t.p.ledgerRepo.LockWallet(ctx, t.tx, userID)
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *model.Wallet) error {
	return t.p.ledgerRepo.UpdateWallet(ctx, t.tx, w)
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return t.p.ledgerRepo.CreateEntry(ctx, t.tx, e)
}

func (t *pgTx) LockBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	return t.p.businessRepo.LockBusiness(ctx, t.tx, id)
}

func (t *pgTx) InsertBusiness(ctx context.Context, b *model.Business) error {
	return t.p.businessRepo.CreateBusiness(ctx, t.tx, b)
}

func (t *pgTx) UpdateBusiness(ctx context.Context, b *model.Business) error {
	return t.p.businessRepo.UpdateBusiness(ctx, t.tx, b)
}
