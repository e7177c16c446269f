package model

import (
	"time"

	"github.com/google/uuid"
)

// ReferralStatus is the redemption state of a referral code
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralVerified  ReferralStatus = "verified"
	ReferralCompleted ReferralStatus = "completed"
	ReferralExpired   ReferralStatus = "expired"
)

// Terminal reports whether no further transition is possible
func (s ReferralStatus) Terminal() bool {
	return s == ReferralCompleted || s == ReferralExpired
}

// Referral represents a minted referral code. The amounts are snapshotted
// from the campaign at minting time and never recomputed.
type Referral struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	CampaignID     uuid.UUID      `db:"campaign_id" json:"campaign_id"`
	ReferrerID     string         `db:"referrer_id" json:"referrer_id"`
	Status         ReferralStatus `db:"status" json:"status"`
	ListPrice      int64          `db:"list_price" json:"list_price"`
	DiscountAmount int64          `db:"discount_amount" json:"discount_amount"`
	FinalPrice     int64          `db:"final_price" json:"final_price"`
	RewardAmount   int64          `db:"reward_amount" json:"reward_amount"`
	PlatformFee    int64          `db:"platform_fee" json:"platform_fee"`
	CompletionKey  *string        `db:"completion_key" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time      `db:"expires_at" json:"expires_at"`
	VerifiedAt     *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// Expired reports whether the code is past its TTL or already swept
func (r *Referral) Expired(now time.Time) bool {
	return r.Status == ReferralExpired || !now.Before(r.ExpiresAt)
}
