package rpc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/service"
)

// Business is the wire form of a business profile. The payment token never
// leaves the server.
type Business struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	LegalName        string    `json:"legal_name"`
	TaxID            string    `json:"tax_id"`
	CompanyType      string    `json:"company_type"`
	Location         string    `json:"location"`
	Verified         bool      `json:"verified"`
	HasPaymentMethod bool      `json:"has_payment_method"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toBusiness(b *model.Business) *Business {
	return &Business{
		ID:               b.ID.String(),
		Name:             b.Name,
		LegalName:        b.LegalName,
		TaxID:            b.TaxID,
		CompanyType:      b.CompanyType,
		Location:         b.Location,
		Verified:         b.Verified,
		HasPaymentMethod: b.HasPaymentMethod(),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

type ListActiveCampaignsRequest struct {
	Limit int32 `json:"limit,omitempty"`
}

type ListCampaignsResponse struct {
	Campaigns []model.Campaign `json:"campaigns"`
}

type CreateReferralRequest struct {
	CampaignID string `json:"campaign_id"`
}

type CreateReferralResponse struct {
	Referral *model.Referral `json:"referral"`
}

type GetBalanceRequest struct{}

type GetBalanceResponse struct {
	Balance *service.Balance `json:"balance"`
}

type ListTransactionsRequest struct {
	// Kind is "earning", "withdrawal" or empty for both
	Kind      string `json:"kind,omitempty"`
	PageSize  int32  `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions  []model.LedgerEntry `json:"transactions"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type RequestWithdrawalRequest struct {
	Amount      int64  `json:"amount"`
	Destination string `json:"destination,omitempty"`
}

type RequestWithdrawalResponse struct {
	Withdrawal *model.LedgerEntry `json:"withdrawal"`
}

type RegisterBusinessRequest struct {
	Name        string `json:"name"`
	LegalName   string `json:"legal_name,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
	CompanyType string `json:"company_type,omitempty"`
	Location    string `json:"location,omitempty"`
}

type GetBusinessRequest struct{}

type UpdateBusinessRequest struct {
	Name        *string `json:"name,omitempty"`
	Location    *string `json:"location,omitempty"`
	LegalName   *string `json:"legal_name,omitempty"`
	TaxID       *string `json:"tax_id,omitempty"`
	CompanyType *string `json:"company_type,omitempty"`
}

type SetPaymentMethodRequest struct {
	PaymentMethodToken string `json:"payment_method_token"`
}

type ClearPaymentMethodRequest struct{}

type BusinessResponse struct {
	Business *Business `json:"business"`
}

type CreateCampaignRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ListPrice   int64  `json:"list_price"`
	// Budget is an absolute amount; BudgetPercent a share of the list price
	Budget        int64            `json:"budget,omitempty"`
	BudgetPercent *decimal.Decimal `json:"budget_percent,omitempty"`
	MinSpend      *int64           `json:"min_spend,omitempty"`
	MaxUses       *int64           `json:"max_uses,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

type UpdateCampaignRequest struct {
	CampaignID     string     `json:"campaign_id"`
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	MaxUses        *int64     `json:"max_uses,omitempty"`
	ClearMaxUses   bool       `json:"clear_max_uses,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ClearExpiresAt bool       `json:"clear_expires_at,omitempty"`
	Status         *string    `json:"status,omitempty"`
	// ListPrice and Budget are rejected when they differ from the stored values
	ListPrice *int64 `json:"list_price,omitempty"`
	Budget    *int64 `json:"budget,omitempty"`
}

type CampaignResponse struct {
	Campaign *model.Campaign `json:"campaign"`
}

type ListCampaignsRequest struct{}

type GetDashboardStatsRequest struct{}

type GetDashboardStatsResponse struct {
	Stats *model.DashboardStats `json:"stats"`
}

type VerifyCodeRequest struct {
	Code       string `json:"code"`
	OrderTotal *int64 `json:"order_total,omitempty"`
}

type VerifyCodeResponse struct {
	Verification *service.Verification `json:"verification"`
}

type CompleteRedemptionRequest struct {
	ReferralID     string `json:"referral_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CompleteRedemptionResponse struct {
	Settlement *service.Settlement `json:"settlement"`
}
