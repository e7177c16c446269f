// Package store defines the persistence contract of the referral engine.
// Implementations must make every InTx callback atomic and must serialize
// callbacks that lock the same referral, campaign or wallet row.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/model"
)

var (
	// ErrNotFound is returned when a looked up row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode is returned when a live referral already uses the code
	ErrDuplicateCode = errors.New("duplicate referral code")
	// ErrDuplicateSettlement is returned when a referral already has an earning entry
	ErrDuplicateSettlement = errors.New("referral already settled")
	// ErrDuplicateBusiness is returned when the owner already registered a business
	ErrDuplicateBusiness = errors.New("business already registered for owner")
	// ErrLimitReached is returned when incrementing usage would pass max_uses
	ErrLimitReached = errors.New("campaign usage limit reached")
)

// Reader holds the non-locking queries
type Reader interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	ListCampaignsByBusiness(ctx context.Context, businessID uuid.UUID) ([]model.Campaign, error)
	ListOpenCampaigns(ctx context.Context, now time.Time, limit int) ([]model.Campaign, error)

	GetReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error)
	// GetReferralByCode prefers a live referral over expired ones sharing the code
	GetReferralByCode(ctx context.Context, code string) (*model.Referral, error)

	GetBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (*model.Business, error)
	GetDashboardStats(ctx context.Context, businessID uuid.UUID) (*model.DashboardStats, error)

	// GetWallet returns a zero wallet for users that never earned
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	ListLedgerEntries(ctx context.Context, userID string, q model.LedgerQuery) ([]model.LedgerEntry, error)
}

// Tx is a unit of work. Lock* methods hold the row until the transaction ends.
type Tx interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	LockCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	InsertCampaign(ctx context.Context, c *model.Campaign) error
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	IncrementCampaignUses(ctx context.Context, id uuid.UUID) error

	LockReferral(ctx context.Context, id uuid.UUID) (*model.Referral, error)
	InsertReferral(ctx context.Context, r *model.Referral) error
	UpdateReferral(ctx context.Context, r *model.Referral) error
	// ExpireReferrals moves pending and verified referrals past expires_at to expired
	ExpireReferrals(ctx context.Context, now time.Time) (int64, error)

	// LockWallet locks the user's wallet row, creating it if missing
	LockWallet(ctx context.Context, userID string) (*model.Wallet, error)
	UpdateWallet(ctx context.Context, w *model.Wallet) error
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error

	LockBusiness(ctx context.Context, id uuid.UUID) (*model.Business, error)
	InsertBusiness(ctx context.Context, b *model.Business) error
	UpdateBusiness(ctx context.Context, b *model.Business) error
}

// Store is the persistence backend
type Store interface {
	Reader
	// InTx runs fn in a transaction, committing when fn returns nil
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
