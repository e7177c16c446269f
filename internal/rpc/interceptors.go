package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/referral/internal/auth"
	"github.com/kkkkikiki/referral/internal/metrics"
	"github.com/kkkkikiki/referral/internal/service"
)

// NewMetricsInterceptor records the duration and result code of every call
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			metrics.RecordRPCDuration(req.Spec().Procedure, code, time.Since(start).Seconds())
			return resp, err
		}
	}
}

// NewErrorInterceptor converts engine errors into connect errors
func NewErrorInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, toConnectError(ctx, logger, req.Spec().Procedure, err)
			}
			return resp, nil
		}
	}
}

// NewAuthInterceptor verifies the bearer token and attaches the caller to the
// context. Callers with a role other than role are rejected.
func NewAuthInterceptor(verifier *auth.Verifier, role service.Role) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			caller, err := verifier.VerifyHeader(req.Header().Get("Authorization"))
			if err != nil {
				return nil, err
			}
			if caller.Role != role {
				return nil, fmt.Errorf("%s token used for %s: %w", caller.Role, req.Spec().Procedure, service.ErrForbidden)
			}
			return next(service.WithCaller(ctx, caller), req)
		}
	}
}

// NewBearerInterceptor sets the Authorization header on outgoing calls
func NewBearerInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}

var errRateLimited = errors.New("too many requests")

// CallerLimiter hands out one token bucket per caller
type CallerLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCallerLimiter allows perSecond calls per caller with the given burst
func NewCallerLimiter(perSecond float64, burst int) *CallerLimiter {
	return &CallerLimiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idle:      10 * time.Minute,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow reports whether callerID may make another call now
func (l *CallerLimiter) Allow(callerID string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idle {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[callerID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[callerID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// NewRateLimitInterceptor throttles the listed procedures per caller. It must
// run after the auth interceptor.
func NewRateLimitInterceptor(limiter *CallerLimiter, procedures ...string) connect.UnaryInterceptorFunc {
	limited := make(map[string]struct{}, len(procedures))
	for _, p := range procedures {
		limited[p] = struct{}{}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if _, ok := limited[req.Spec().Procedure]; !ok {
				return next(ctx, req)
			}
			caller, _ := service.CallerFrom(ctx)
			if !limiter.Allow(caller.ID) {
				cerr := connect.NewError(connect.CodeResourceExhausted, errRateLimited)
				cerr.Meta().Set(ReasonHeader, "rate_limited")
				return nil, cerr
			}
			return next(ctx, req)
		}
	}
}
