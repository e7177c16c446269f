package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/auth"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/service"
)

const ConsumerServiceName = "referral.v1.ConsumerService"

const (
	ConsumerServiceListActiveCampaignsProcedure = "/referral.v1.ConsumerService/ListActiveCampaigns"
	ConsumerServiceCreateReferralProcedure      = "/referral.v1.ConsumerService/CreateReferral"
	ConsumerServiceGetBalanceProcedure          = "/referral.v1.ConsumerService/GetBalance"
	ConsumerServiceListTransactionsProcedure    = "/referral.v1.ConsumerService/ListTransactions"
	ConsumerServiceRequestWithdrawalProcedure   = "/referral.v1.ConsumerService/RequestWithdrawal"
)

// HandlerConfig holds what both services need besides the engine
type HandlerConfig struct {
	Verifier *auth.Verifier
	Logger   *slog.Logger
	// VerifyLimiter throttles VerifyCode per caller; nil disables it
	VerifyLimiter *CallerLimiter
}

func (c HandlerConfig) handlerOptions(role service.Role) []connect.HandlerOption {
	interceptors := []connect.Interceptor{
		NewMetricsInterceptor(),
		NewErrorInterceptor(c.Logger),
		NewAuthInterceptor(c.Verifier, role),
	}
	if c.VerifyLimiter != nil {
		interceptors = append(interceptors, NewRateLimitInterceptor(c.VerifyLimiter, BusinessServiceVerifyCodeProcedure))
	}
	return []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(interceptors...),
	}
}

// ConsumerServer serves the consumer-facing procedures
type ConsumerServer struct {
	svc *service.Service
}

// NewConsumerServiceHandler builds an HTTP handler for the consumer service.
// It returns the path on which to mount the handler and the handler itself.
func NewConsumerServiceHandler(svc *service.Service, cfg HandlerConfig) (string, http.Handler) {
	s := &ConsumerServer{svc: svc}
	opts := cfg.handlerOptions(service.RoleConsumer)

	listActiveCampaigns := connect.NewUnaryHandler(ConsumerServiceListActiveCampaignsProcedure, s.ListActiveCampaigns, opts...)
	createReferral := connect.NewUnaryHandler(ConsumerServiceCreateReferralProcedure, s.CreateReferral, opts...)
	getBalance := connect.NewUnaryHandler(ConsumerServiceGetBalanceProcedure, s.GetBalance, opts...)
	listTransactions := connect.NewUnaryHandler(ConsumerServiceListTransactionsProcedure, s.ListTransactions, opts...)
	requestWithdrawal := connect.NewUnaryHandler(ConsumerServiceRequestWithdrawalProcedure, s.RequestWithdrawal, opts...)

	return "/" + ConsumerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ConsumerServiceListActiveCampaignsProcedure:
			listActiveCampaigns.ServeHTTP(w, r)
		case ConsumerServiceCreateReferralProcedure:
			createReferral.ServeHTTP(w, r)
		case ConsumerServiceGetBalanceProcedure:
			getBalance.ServeHTTP(w, r)
		case ConsumerServiceListTransactionsProcedure:
			listTransactions.ServeHTTP(w, r)
		case ConsumerServiceRequestWithdrawalProcedure:
			requestWithdrawal.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *ConsumerServer) consumer(ctx context.Context) (*service.ConsumerFacade, error) {
	caller, ok := service.CallerFrom(ctx)
	if !ok {
		return nil, service.ErrAuthRequired
	}
	return s.svc.Consumer(caller)
}

// ListActiveCampaigns lists campaigns open for referrals
func (s *ConsumerServer) ListActiveCampaigns(
	ctx context.Context,
	req *connect.Request[ListActiveCampaignsRequest],
) (*connect.Response[ListCampaignsResponse], error) {
	f, err := s.consumer(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := f.ListActiveCampaigns(ctx, int(req.Msg.Limit))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListCampaignsResponse{Campaigns: campaigns}), nil
}

// CreateReferral mints a referral code for the caller
func (s *ConsumerServer) CreateReferral(
	ctx context.Context,
	req *connect.Request[CreateReferralRequest],
) (*connect.Response[CreateReferralResponse], error) {
	f, err := s.consumer(ctx)
	if err != nil {
		return nil, err
	}
	campaignID, err := parseID("campaign_id", req.Msg.CampaignID)
	if err != nil {
		return nil, err
	}
	ref, err := f.CreateReferral(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CreateReferralResponse{Referral: ref}), nil
}

// GetBalance returns the caller's wallet balance
func (s *ConsumerServer) GetBalance(
	ctx context.Context,
	req *connect.Request[GetBalanceRequest],
) (*connect.Response[GetBalanceResponse], error) {
	f, err := s.consumer(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := f.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GetBalanceResponse{Balance: balance}), nil
}

// ListTransactions returns one page of the caller's ledger
func (s *ConsumerServer) ListTransactions(
	ctx context.Context,
	req *connect.Request[ListTransactionsRequest],
) (*connect.Response[ListTransactionsResponse], error) {
	f, err := s.consumer(ctx)
	if err != nil {
		return nil, err
	}

	filter := service.TransactionFilter{PageSize: int(req.Msg.PageSize)}
	if req.Msg.Kind != "" {
		kind := model.EntryKind(req.Msg.Kind)
		filter.Kind = &kind
	}
	after, err := decodePageToken(req.Msg.PageToken)
	if err != nil {
		return nil, err
	}

	entries, next, err := f.TransactionPage(ctx, filter, after)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListTransactionsResponse{
		Transactions:  entries,
		NextPageToken: encodePageToken(next),
	}), nil
}

// RequestWithdrawal queues a payout of part of the caller's balance
func (s *ConsumerServer) RequestWithdrawal(
	ctx context.Context,
	req *connect.Request[RequestWithdrawalRequest],
) (*connect.Response[RequestWithdrawalResponse], error) {
	f, err := s.consumer(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := f.RequestWithdrawal(ctx, req.Msg.Amount, req.Msg.Destination)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&RequestWithdrawalResponse{Withdrawal: entry}), nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, &service.ValidationError{Field: field, Reason: "must be a UUID"}
	}
	return id, nil
}

// Page tokens are "<unix nanos>.<entry id>" in URL-safe base64.
func encodePageToken(c *model.LedgerCursor) string {
	if c == nil {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePageToken(token string) (*model.LedgerCursor, error) {
	if token == "" {
		return nil, nil
	}
	bad := invalidArgument("validation", fmt.Errorf("invalid page_token"))

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, bad
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, bad
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, bad
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, bad
	}
	return &model.LedgerCursor{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}
