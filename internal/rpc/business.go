package rpc

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/service"
)

const BusinessServiceName = "referral.v1.BusinessService"

const (
	BusinessServiceRegisterBusinessProcedure   = "/referral.v1.BusinessService/RegisterBusiness"
	BusinessServiceGetBusinessProcedure        = "/referral.v1.BusinessService/GetBusiness"
	BusinessServiceUpdateBusinessProcedure     = "/referral.v1.BusinessService/UpdateBusiness"
	BusinessServiceSetPaymentMethodProcedure   = "/referral.v1.BusinessService/SetPaymentMethod"
	BusinessServiceClearPaymentMethodProcedure = "/referral.v1.BusinessService/ClearPaymentMethod"
	BusinessServiceCreateCampaignProcedure     = "/referral.v1.BusinessService/CreateCampaign"
	BusinessServiceUpdateCampaignProcedure     = "/referral.v1.BusinessService/UpdateCampaign"
	BusinessServiceListCampaignsProcedure      = "/referral.v1.BusinessService/ListCampaigns"
	BusinessServiceGetDashboardStatsProcedure  = "/referral.v1.BusinessService/GetDashboardStats"
	BusinessServiceVerifyCodeProcedure         = "/referral.v1.BusinessService/VerifyCode"
	BusinessServiceCompleteRedemptionProcedure = "/referral.v1.BusinessService/CompleteRedemption"
)

// BusinessServer serves the merchant-facing procedures
type BusinessServer struct {
	svc *service.Service
}

// NewBusinessServiceHandler builds an HTTP handler for the business service.
// It returns the path on which to mount the handler and the handler itself.
func NewBusinessServiceHandler(svc *service.Service, cfg HandlerConfig) (string, http.Handler) {
	s := &BusinessServer{svc: svc}
	opts := cfg.handlerOptions(service.RoleBusiness)

	mux := map[string]http.Handler{
		BusinessServiceRegisterBusinessProcedure:   connect.NewUnaryHandler(BusinessServiceRegisterBusinessProcedure, s.RegisterBusiness, opts...),
		BusinessServiceGetBusinessProcedure:        connect.NewUnaryHandler(BusinessServiceGetBusinessProcedure, s.GetBusiness, opts...),
		BusinessServiceUpdateBusinessProcedure:     connect.NewUnaryHandler(BusinessServiceUpdateBusinessProcedure, s.UpdateBusiness, opts...),
		BusinessServiceSetPaymentMethodProcedure:   connect.NewUnaryHandler(BusinessServiceSetPaymentMethodProcedure, s.SetPaymentMethod, opts...),
		BusinessServiceClearPaymentMethodProcedure: connect.NewUnaryHandler(BusinessServiceClearPaymentMethodProcedure, s.ClearPaymentMethod, opts...),
		BusinessServiceCreateCampaignProcedure:     connect.NewUnaryHandler(BusinessServiceCreateCampaignProcedure, s.CreateCampaign, opts...),
		BusinessServiceUpdateCampaignProcedure:     connect.NewUnaryHandler(BusinessServiceUpdateCampaignProcedure, s.UpdateCampaign, opts...),
		BusinessServiceListCampaignsProcedure:      connect.NewUnaryHandler(BusinessServiceListCampaignsProcedure, s.ListCampaigns, opts...),
		BusinessServiceGetDashboardStatsProcedure:  connect.NewUnaryHandler(BusinessServiceGetDashboardStatsProcedure, s.GetDashboardStats, opts...),
		BusinessServiceVerifyCodeProcedure:         connect.NewUnaryHandler(BusinessServiceVerifyCodeProcedure, s.VerifyCode, opts...),
		BusinessServiceCompleteRedemptionProcedure: connect.NewUnaryHandler(BusinessServiceCompleteRedemptionProcedure, s.CompleteRedemption, opts...),
	}

	return "/" + BusinessServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := mux[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *BusinessServer) business(ctx context.Context) (*service.BusinessFacade, error) {
	caller, ok := service.CallerFrom(ctx)
	if !ok {
		return nil, service.ErrAuthRequired
	}
	return s.svc.Business(caller)
}

// RegisterBusiness creates the caller's business profile
func (s *BusinessServer) RegisterBusiness(
	ctx context.Context,
	req *connect.Request[RegisterBusinessRequest],
) (*connect.Response[BusinessResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	b, err := f.RegisterBusiness(ctx, service.RegisterBusinessInput{
		Name:        req.Msg.Name,
		LegalName:   req.Msg.LegalName,
		TaxID:       req.Msg.TaxID,
		CompanyType: req.Msg.CompanyType,
		Location:    req.Msg.Location,
	})
	return businessResponse(b, err)
}

// GetBusiness returns the caller's business profile
func (s *BusinessServer) GetBusiness(
	ctx context.Context,
	req *connect.Request[GetBusinessRequest],
) (*connect.Response[BusinessResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	return businessResponse(f.Profile(ctx))
}

// UpdateBusiness applies a partial profile update
func (s *BusinessServer) UpdateBusiness(
	ctx context.Context,
	req *connect.Request[UpdateBusinessRequest],
) (*connect.Response[BusinessResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	return businessResponse(f.UpdateProfile(ctx, model.BusinessPatch{
		Name:        req.Msg.Name,
		Location:    req.Msg.Location,
		LegalName:   req.Msg.LegalName,
		TaxID:       req.Msg.TaxID,
		CompanyType: req.Msg.CompanyType,
	}))
}

// SetPaymentMethod stores the opaque payment token of the business
func (s *BusinessServer) SetPaymentMethod(
	ctx context.Context,
	req *connect.Request[SetPaymentMethodRequest],
) (*connect.Response[BusinessResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	return businessResponse(f.SetPaymentMethod(ctx, req.Msg.PaymentMethodToken))
}

// ClearPaymentMethod removes the payment token
func (s *BusinessServer) ClearPaymentMethod(
	ctx context.Context,
	req *connect.Request[ClearPaymentMethodRequest],
) (*connect.Response[BusinessResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	return businessResponse(f.ClearPaymentMethod(ctx))
}

func businessResponse(b *model.Business, err error) (*connect.Response[BusinessResponse], error) {
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BusinessResponse{Business: toBusiness(b)}), nil
}

// CreateCampaign creates a campaign for the caller's business
func (s *BusinessServer) CreateCampaign(
	ctx context.Context,
	req *connect.Request[CreateCampaignRequest],
) (*connect.Response[CampaignResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	c, err := f.CreateCampaign(ctx, service.CreateCampaignInput{
		Title:       req.Msg.Title,
		Description: req.Msg.Description,
		ListPrice:   req.Msg.ListPrice,
		Budget: service.BudgetSpec{
			Amount:  req.Msg.Budget,
			Percent: req.Msg.BudgetPercent,
		},
		MinSpend:  req.Msg.MinSpend,
		MaxUses:   req.Msg.MaxUses,
		ExpiresAt: req.Msg.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CampaignResponse{Campaign: c}), nil
}

// UpdateCampaign applies a partial campaign update
func (s *BusinessServer) UpdateCampaign(
	ctx context.Context,
	req *connect.Request[UpdateCampaignRequest],
) (*connect.Response[CampaignResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("campaign_id", req.Msg.CampaignID)
	if err != nil {
		return nil, err
	}
	c, err := f.UpdateCampaign(ctx, id, campaignPatch(req.Msg))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CampaignResponse{Campaign: c}), nil
}

func campaignPatch(m *UpdateCampaignRequest) model.CampaignPatch {
	patch := model.CampaignPatch{
		Title:       m.Title,
		Description: m.Description,
		ListPrice:   m.ListPrice,
		Budget:      m.Budget,
	}
	switch {
	case m.ClearMaxUses:
		var none *int64
		patch.MaxUses = &none
	case m.MaxUses != nil:
		patch.MaxUses = &m.MaxUses
	}
	switch {
	case m.ClearExpiresAt:
		var none *time.Time
		patch.ExpiresAt = &none
	case m.ExpiresAt != nil:
		patch.ExpiresAt = &m.ExpiresAt
	}
	if m.Status != nil {
		status := model.CampaignStatus(*m.Status)
		patch.Status = &status
	}
	return patch
}

// ListCampaigns lists the caller's campaigns
func (s *BusinessServer) ListCampaigns(
	ctx context.Context,
	req *connect.Request[ListCampaignsRequest],
) (*connect.Response[ListCampaignsResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := f.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListCampaignsResponse{Campaigns: campaigns}), nil
}

// GetDashboardStats aggregates the caller's campaign activity
func (s *BusinessServer) GetDashboardStats(
	ctx context.Context,
	req *connect.Request[GetDashboardStatsRequest],
) (*connect.Response[GetDashboardStatsResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := f.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GetDashboardStatsResponse{Stats: stats}), nil
}

// VerifyCode checks a code presented at the point of sale
func (s *BusinessServer) VerifyCode(
	ctx context.Context,
	req *connect.Request[VerifyCodeRequest],
) (*connect.Response[VerifyCodeResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	v, err := f.VerifyCode(ctx, service.VerifyInput{
		Code:       req.Msg.Code,
		OrderTotal: req.Msg.OrderTotal,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&VerifyCodeResponse{Verification: v}), nil
}

// CompleteRedemption settles a verified referral. An Idempotency-Key header
// is used when the request carries no key.
func (s *BusinessServer) CompleteRedemption(
	ctx context.Context,
	req *connect.Request[CompleteRedemptionRequest],
) (*connect.Response[CompleteRedemptionResponse], error) {
	f, err := s.business(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("referral_id", req.Msg.ReferralID)
	if err != nil {
		return nil, err
	}
	key := req.Msg.IdempotencyKey
	if key == "" {
		key = req.Header().Get("Idempotency-Key")
	}

	settlement, err := f.CompleteRedemption(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CompleteRedemptionResponse{Settlement: settlement}), nil
}
