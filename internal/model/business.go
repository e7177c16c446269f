package model

import (
	"time"

	"github.com/google/uuid"
)

// Business is the merchant that owns campaigns and redeems codes
type Business struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OwnerID            string    `db:"owner_id" json:"owner_id"`
	Name               string    `db:"name" json:"name"`
	LegalName          string    `db:"legal_name" json:"legal_name"`
	TaxID              string    `db:"tax_id" json:"tax_id"`
	CompanyType        string    `db:"company_type" json:"company_type"`
	Location           string    `db:"location" json:"location"`
	PaymentMethodToken *string   `db:"payment_method_token" json:"-"`
	Verified           bool      `db:"verified" json:"verified"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// HasPaymentMethod reports whether a payment token is on file
func (b *Business) HasPaymentMethod() bool {
	return b.PaymentMethodToken != nil && *b.PaymentMethodToken != ""
}

// BusinessPatch carries profile changes; nil fields are untouched
type BusinessPatch struct {
	Name        *string
	Location    *string
	LegalName   *string
	TaxID       *string
	CompanyType *string
}

// DashboardStats aggregates a business's campaign activity
type DashboardStats struct {
	BusinessID        uuid.UUID `db:"business_id" json:"business_id"`
	TotalCampaigns    int64     `db:"total_campaigns" json:"total_campaigns"`
	ActiveCampaigns   int64     `db:"active_campaigns" json:"active_campaigns"`
	TotalRedemptions  int64     `db:"total_redemptions" json:"total_redemptions"`
	PendingReferrals  int64     `db:"pending_referrals" json:"pending_referrals"`
	TotalDiscount     int64     `db:"total_discount" json:"total_discount"`
	TotalRewardsPaid  int64     `db:"total_rewards_paid" json:"total_rewards_paid"`
	TotalPlatformFees int64     `db:"total_platform_fees" json:"total_platform_fees"`
}
