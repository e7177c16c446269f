// Package service is the referral redemption and reward settlement engine.
// It owns every business rule; persistence goes through store.Store and all
// multi-row changes run inside a single store transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kkkkikiki/referral/internal/codegen"
	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/store"
)

const (
	DefaultCodeTTL           = 24 * time.Hour
	DefaultMaxCodeAttempts   = 8
	DefaultMinimumWithdrawal = 5000
	DefaultOpenCampaignLimit = 100
)

// Options tunes the engine. Zero values fall back to the defaults above.
type Options struct {
	CodeLength        int
	CodeTTL           time.Duration
	MaxCodeAttempts   int
	MinimumWithdrawal int64

	Logger    *slog.Logger
	Publisher events.Publisher
	// Now overrides the clock in tests
	Now func() time.Time
	// Codes overrides the code generator in tests
	Codes *codegen.Generator
}

// OptionsFromConfig maps the REFERRAL_ and WALLET_ settings onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CodeLength:        cfg.Referral.CodeLength,
		CodeTTL:           cfg.Referral.CodeTTL,
		MaxCodeAttempts:   cfg.Referral.MaxCodeAttempts,
		MinimumWithdrawal: cfg.Wallet.MinimumWithdrawal,
	}
}

// Service implements the engine operations
type Service struct {
	store     store.Store
	codes     *codegen.Generator
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	codeTTL           time.Duration
	maxCodeAttempts   int
	minimumWithdrawal int64
}

// New creates a Service over st
func New(st store.Store, opts Options) (*Service, error) {
	s := &Service{
		store:             st,
		codes:             opts.Codes,
		publisher:         opts.Publisher,
		logger:            opts.Logger,
		now:               opts.Now,
		codeTTL:           opts.CodeTTL,
		maxCodeAttempts:   opts.MaxCodeAttempts,
		minimumWithdrawal: opts.MinimumWithdrawal,
	}

	if s.codes == nil {
		length := opts.CodeLength
		if length == 0 {
			length = codegen.DefaultLength
		}
		codes, err := codegen.New(length)
		if err != nil {
			return nil, fmt.Errorf("failed to create code generator: %w", err)
		}
		s.codes = codes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.maxCodeAttempts <= 0 {
		s.maxCodeAttempts = DefaultMaxCodeAttempts
	}
	if s.minimumWithdrawal <= 0 {
		s.minimumWithdrawal = DefaultMinimumWithdrawal
	}

	return s, nil
}

// MinimumWithdrawal returns the smallest amount RequestWithdrawal accepts
func (s *Service) MinimumWithdrawal() int64 {
	return s.minimumWithdrawal
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// publish hands e to the publisher after commit. Failures are logged only.
func (s *Service) publish(ctx context.Context, eventType string, at time.Time, data any) {
	e := events.New(eventType, at, data)
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "type", eventType, "event_id", e.ID, "error", err)
	}
}

// notFound maps store.ErrNotFound onto the given engine error
func notFound(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}
