package service

import (
	"context"
	"fmt"

	"github.com/kkkkikiki/referral/internal/metrics"
	"github.com/kkkkikiki/referral/internal/store"
)

// ExpireStaleReferrals moves every pending or verified referral past its
// expiry to expired and returns how many changed. Verify and complete check
// expiry lazily as well, so the sweep only keeps the live code index small.
func (s *Service) ExpireStaleReferrals(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.ExpireReferrals(ctx, s.clock())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire referrals: %w", err)
	}

	if n > 0 {
		metrics.ReferralsExpired.Add(float64(n))
		s.logger.InfoContext(ctx, "expired stale referrals", "count", n)
	}
	return n, nil
}
