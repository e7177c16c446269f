package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

func clientOptions(token string, opts []connect.ClientOption) []connect.ClientOption {
	out := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	if token != "" {
		out = append(out, connect.WithInterceptors(NewBearerInterceptor(token)))
	}
	return append(out, opts...)
}

// ConsumerClient calls the consumer service
type ConsumerClient struct {
	listActiveCampaigns *connect.Client[ListActiveCampaignsRequest, ListCampaignsResponse]
	createReferral      *connect.Client[CreateReferralRequest, CreateReferralResponse]
	getBalance          *connect.Client[GetBalanceRequest, GetBalanceResponse]
	listTransactions    *connect.Client[ListTransactionsRequest, ListTransactionsResponse]
	requestWithdrawal   *connect.Client[RequestWithdrawalRequest, RequestWithdrawalResponse]
}

// NewConsumerClient creates a consumer client for baseURL. token is sent as
// a bearer token on every call when non-empty.
func NewConsumerClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *ConsumerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	o := clientOptions(token, opts)
	return &ConsumerClient{
		listActiveCampaigns: connect.NewClient[ListActiveCampaignsRequest, ListCampaignsResponse](httpClient, baseURL+ConsumerServiceListActiveCampaignsProcedure, o...),
		createReferral:      connect.NewClient[CreateReferralRequest, CreateReferralResponse](httpClient, baseURL+ConsumerServiceCreateReferralProcedure, o...),
		getBalance:          connect.NewClient[GetBalanceRequest, GetBalanceResponse](httpClient, baseURL+ConsumerServiceGetBalanceProcedure, o...),
		listTransactions:    connect.NewClient[ListTransactionsRequest, ListTransactionsResponse](httpClient, baseURL+ConsumerServiceListTransactionsProcedure, o...),
		requestWithdrawal:   connect.NewClient[RequestWithdrawalRequest, RequestWithdrawalResponse](httpClient, baseURL+ConsumerServiceRequestWithdrawalProcedure, o...),
	}
}

func (c *ConsumerClient) ListActiveCampaigns(ctx context.Context, req *ListActiveCampaignsRequest) (*ListCampaignsResponse, error) {
	return call(ctx, c.listActiveCampaigns, req)
}

func (c *ConsumerClient) CreateReferral(ctx context.Context, req *CreateReferralRequest) (*CreateReferralResponse, error) {
	return call(ctx, c.createReferral, req)
}

func (c *ConsumerClient) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	return call(ctx, c.getBalance, req)
}

func (c *ConsumerClient) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	return call(ctx, c.listTransactions, req)
}

func (c *ConsumerClient) RequestWithdrawal(ctx context.Context, req *RequestWithdrawalRequest) (*RequestWithdrawalResponse, error) {
	return call(ctx, c.requestWithdrawal, req)
}

// BusinessClient calls the business service
type BusinessClient struct {
	registerBusiness   *connect.Client[RegisterBusinessRequest, BusinessResponse]
	getBusiness        *connect.Client[GetBusinessRequest, BusinessResponse]
	updateBusiness     *connect.Client[UpdateBusinessRequest, BusinessResponse]
	setPaymentMethod   *connect.Client[SetPaymentMethodRequest, BusinessResponse]
	clearPaymentMethod *connect.Client[ClearPaymentMethodRequest, BusinessResponse]
	createCampaign     *connect.Client[CreateCampaignRequest, CampaignResponse]
	updateCampaign     *connect.Client[UpdateCampaignRequest, CampaignResponse]
	listCampaigns      *connect.Client[ListCampaignsRequest, ListCampaignsResponse]
	getDashboardStats  *connect.Client[GetDashboardStatsRequest, GetDashboardStatsResponse]
	verifyCode         *connect.Client[VerifyCodeRequest, VerifyCodeResponse]
	completeRedemption *connect.Client[CompleteRedemptionRequest, CompleteRedemptionResponse]
}

// NewBusinessClient creates a business client for baseURL
func NewBusinessClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *BusinessClient {
	baseURL = strings.TrimRight(baseURL, "/")
	o := clientOptions(token, opts)
	return &BusinessClient{
		registerBusiness:   connect.NewClient[RegisterBusinessRequest, BusinessResponse](httpClient, baseURL+BusinessServiceRegisterBusinessProcedure, o...),
		getBusiness:        connect.NewClient[GetBusinessRequest, BusinessResponse](httpClient, baseURL+BusinessServiceGetBusinessProcedure, o...),
		updateBusiness:     connect.NewClient[UpdateBusinessRequest, BusinessResponse](httpClient, baseURL+BusinessServiceUpdateBusinessProcedure, o...),
		setPaymentMethod:   connect.NewClient[SetPaymentMethodRequest, BusinessResponse](httpClient, baseURL+BusinessServiceSetPaymentMethodProcedure, o...),
		clearPaymentMethod: connect.NewClient[ClearPaymentMethodRequest, BusinessResponse](httpClient, baseURL+BusinessServiceClearPaymentMethodProcedure, o...),
		createCampaign:     connect.NewClient[CreateCampaignRequest, CampaignResponse](httpClient, baseURL+BusinessServiceCreateCampaignProcedure, o...),
		updateCampaign:     connect.NewClient[UpdateCampaignRequest, CampaignResponse](httpClient, baseURL+BusinessServiceUpdateCampaignProcedure, o...),
		listCampaigns:      connect.NewClient[ListCampaignsRequest, ListCampaignsResponse](httpClient, baseURL+BusinessServiceListCampaignsProcedure, o...),
		getDashboardStats:  connect.NewClient[GetDashboardStatsRequest, GetDashboardStatsResponse](httpClient, baseURL+BusinessServiceGetDashboardStatsProcedure, o...),
		verifyCode:         connect.NewClient[VerifyCodeRequest, VerifyCodeResponse](httpClient, baseURL+BusinessServiceVerifyCodeProcedure, o...),
		completeRedemption: connect.NewClient[CompleteRedemptionRequest, CompleteRedemptionResponse](httpClient, baseURL+BusinessServiceCompleteRedemptionProcedure, o...),
	}
}

func (c *BusinessClient) RegisterBusiness(ctx context.Context, req *RegisterBusinessRequest) (*BusinessResponse, error) {
	return call(ctx, c.registerBusiness, req)
}

func (c *BusinessClient) GetBusiness(ctx context.Context, req *GetBusinessRequest) (*BusinessResponse, error) {
	return call(ctx, c.getBusiness, req)
}

func (c *BusinessClient) UpdateBusiness(ctx context.Context, req *UpdateBusinessRequest) (*BusinessResponse, error) {
	return call(ctx, c.updateBusiness, req)
}

func (c *BusinessClient) SetPaymentMethod(ctx context.Context, req *SetPaymentMethodRequest) (*BusinessResponse, error) {
	return call(ctx, c.setPaymentMethod, req)
}

func (c *BusinessClient) ClearPaymentMethod(ctx context.Context, req *ClearPaymentMethodRequest) (*BusinessResponse, error) {
	return call(ctx, c.clearPaymentMethod, req)
}

func (c *BusinessClient) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*CampaignResponse, error) {
	return call(ctx, c.createCampaign, req)
}

func (c *BusinessClient) UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest) (*CampaignResponse, error) {
	return call(ctx, c.updateCampaign, req)
}

func (c *BusinessClient) ListCampaigns(ctx context.Context, req *ListCampaignsRequest) (*ListCampaignsResponse, error) {
	return call(ctx, c.listCampaigns, req)
}

func (c *BusinessClient) GetDashboardStats(ctx context.Context, req *GetDashboardStatsRequest) (*GetDashboardStatsResponse, error) {
	return call(ctx, c.getDashboardStats, req)
}

func (c *BusinessClient) VerifyCode(ctx context.Context, req *VerifyCodeRequest) (*VerifyCodeResponse, error) {
	return call(ctx, c.verifyCode, req)
}

func (c *BusinessClient) CompleteRedemption(ctx context.Context, req *CompleteRedemptionRequest) (*CompleteRedemptionResponse, error) {
	return call(ctx, c.completeRedemption, req)
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
