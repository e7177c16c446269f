package rpc

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/referral/internal/auth"
	"github.com/kkkkikiki/referral/internal/service"
)

// ReasonHeader carries the machine-readable failure reason of an RPC
const ReasonHeader = "Referral-Error"

type errorRule struct {
	err    error
	code   connect.Code
	reason string
}

// Sentinels are matched in order, so specific state conflicts come before
// the generic failed-precondition fallback.
var errorRules = []errorRule{
	{service.ErrAuthRequired, connect.CodeUnauthenticated, "auth_required"},
	{auth.ErrMissingToken, connect.CodeUnauthenticated, "auth_required"},
	{auth.ErrInvalidToken, connect.CodeUnauthenticated, "invalid_token"},
	{service.ErrForbidden, connect.CodePermissionDenied, "forbidden"},

	{service.ErrCampaignNotFound, connect.CodeNotFound, "campaign_not_found"},
	{service.ErrReferralNotFound, connect.CodeNotFound, "referral_not_found"},
	{service.ErrCodeNotFound, connect.CodeNotFound, "code_not_found"},
	{service.ErrBusinessNotFound, connect.CodeNotFound, "business_not_found"},

	{service.ErrCodeAlreadyUsed, connect.CodeAlreadyExists, "code_already_used"},
	{service.ErrAlreadyCompleted, connect.CodeAlreadyExists, "already_completed"},
	{service.ErrBusinessExists, connect.CodeAlreadyExists, "business_exists"},
	{service.ErrCampaignUsageExceeded, connect.CodeResourceExhausted, "campaign_usage_exceeded"},
	{service.ErrCampaignClosed, connect.CodeFailedPrecondition, "campaign_closed"},
	{service.ErrCodeExpired, connect.CodeFailedPrecondition, "code_expired"},
	{service.ErrBelowMinSpend, connect.CodeFailedPrecondition, "below_min_spend"},
	{service.ErrInsufficientBalance, connect.CodeFailedPrecondition, "insufficient_balance"},
	{service.ErrBelowMinimum, connect.CodeInvalidArgument, "below_minimum"},

	{service.ErrCodeGenerationExhausted, connect.CodeUnavailable, "code_generation_exhausted"},
	{context.Canceled, connect.CodeCanceled, "canceled"},
	{context.DeadlineExceeded, connect.CodeDeadlineExceeded, "deadline_exceeded"},
}

// toConnectError maps an engine error onto a connect error with a reason
// header. Unknown errors become Internal and their text is not sent.
func toConnectError(ctx context.Context, logger *slog.Logger, procedure string, err error) *connect.Error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	code, reason := classify(err)
	msg := err
	if code == connect.CodeInternal {
		logger.ErrorContext(ctx, "rpc failed", "procedure", procedure, "error", err)
		msg = errors.New("internal error")
	}

	out := connect.NewError(code, msg)
	out.Meta().Set(ReasonHeader, reason)
	return out
}

func classify(err error) (connect.Code, string) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return connect.CodeInvalidArgument, "validation"
	}
	var ie *service.ImmutableFieldError
	if errors.As(err, &ie) {
		return connect.CodeInvalidArgument, "immutable_field"
	}
	for _, rule := range errorRules {
		if errors.Is(err, rule.err) {
			return rule.code, rule.reason
		}
	}
	if service.IsStateConflict(err) {
		return connect.CodeFailedPrecondition, "state_conflict"
	}
	return connect.CodeInternal, "internal"
}

// ReasonOf returns the reason a server attached to a failed call
func ReasonOf(err error) string {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return ""
	}
	return cerr.Meta().Get(ReasonHeader)
}

func invalidArgument(reason string, err error) *connect.Error {
	out := connect.NewError(connect.CodeInvalidArgument, err)
	out.Meta().Set(ReasonHeader, reason)
	return out
}
