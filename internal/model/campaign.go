package model

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignActive CampaignStatus = "active"
	CampaignPaused CampaignStatus = "paused"
	CampaignEnded  CampaignStatus = "ended"
)

// Valid reports whether s is a known campaign status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignActive, CampaignPaused, CampaignEnded:
		return true
	}
	return false
}

// Campaign represents a referral campaign in the database.
// Amounts are minor currency units.
type Campaign struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	BusinessID     uuid.UUID      `db:"business_id" json:"business_id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	ListPrice      int64          `db:"list_price" json:"list_price"`
	Budget         int64          `db:"budget" json:"budget"`
	DiscountAmount int64          `db:"discount_amount" json:"discount_amount"`
	ReferrerReward int64          `db:"referrer_reward" json:"referrer_reward"`
	PlatformFee    int64          `db:"platform_fee" json:"platform_fee"`
	MinSpend       *int64         `db:"min_spend" json:"min_spend,omitempty"`
	MaxUses        *int64         `db:"max_uses" json:"max_uses,omitempty"`
	CurrentUses    int64          `db:"current_uses" json:"current_uses"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	Status         CampaignStatus `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// FinalPrice is what the referred customer pays at the point of sale
func (c *Campaign) FinalPrice() int64 {
	return c.ListPrice - c.DiscountAmount
}

// Expired reports whether the campaign's expiry has passed at now
func (c *Campaign) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Exhausted reports whether a usage limit is set and fully consumed
func (c *Campaign) Exhausted() bool {
	return c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// Open reports whether new referrals may be minted against the campaign
func (c *Campaign) Open(now time.Time) bool {
	return c.Status == CampaignActive && !c.Expired(now) && !c.Exhausted()
}

// CampaignPatch carries the mutable campaign fields. A nil field is left
// untouched. ListPrice and Budget exist only so that attempts to change them
// can be rejected.
type CampaignPatch struct {
	Title       *string
	Description *string
	MaxUses     **int64
	ExpiresAt   **time.Time
	Status      *CampaignStatus
	ListPrice   *int64
	Budget      *int64
}
