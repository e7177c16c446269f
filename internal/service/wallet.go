package service

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Balance summarizes a consumer wallet. Available is earnings minus pending
// and completed withdrawals.
type Balance struct {
	UserID         string `json:"user_id"`
	Available      int64  `json:"available"`
	TotalEarned    int64  `json:"total_earned"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
}

// TransactionFilter narrows a ledger listing
type TransactionFilter struct {
	// Kind restricts the listing to earnings or withdrawals when set
	Kind *model.EntryKind
	// PageSize is the number of rows fetched per store round trip
	PageSize int
}

// GetBalance returns the caller's wallet balance
func (f *ConsumerFacade) GetBalance(ctx context.Context) (*Balance, error) {
	w, err := f.svc.store.GetWallet(ctx, f.caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &Balance{
		UserID:         f.caller.ID,
		Available:      w.Balance,
		TotalEarned:    w.TotalEarned,
		TotalWithdrawn: w.TotalWithdrawn,
	}, nil
}

// TransactionPage returns one page of the caller's ledger, newest first, and
// the cursor of the next page. next is nil on the last page.
func (f *ConsumerFacade) TransactionPage(ctx context.Context, filter TransactionFilter, after *model.LedgerCursor) (entries []model.LedgerEntry, next *model.LedgerCursor, err error) {
	if filter.Kind != nil && *filter.Kind != model.EntryEarning && *filter.Kind != model.EntryWithdrawal {
		return nil, nil, invalid("kind", "unknown entry kind %q", *filter.Kind)
	}
	size := filter.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	// One extra row tells whether another page exists.
	rows, err := f.svc.store.ListLedgerEntries(ctx, f.caller.ID, model.LedgerQuery{
		Kind:  filter.Kind,
		After: after,
		Limit: size + 1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	if len(rows) > size {
		rows = rows[:size]
		c := rows[size-1].Cursor()
		next = &c
	}
	return rows, next, nil
}

// ListTransactions returns the caller's ledger newest first as a lazy
// sequence. Pages are fetched as the sequence is consumed; ranging over it
// again starts from the newest entry.
func (f *ConsumerFacade) ListTransactions(ctx context.Context, filter TransactionFilter) iter.Seq2[model.LedgerEntry, error] {
	return func(yield func(model.LedgerEntry, error) bool) {
		var after *model.LedgerCursor
		for {
			page, next, err := f.TransactionPage(ctx, filter, after)
			if err != nil {
				yield(model.LedgerEntry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			after = next
		}
	}
}

// RequestWithdrawal reserves amount from the caller's balance and records a
// pending withdrawal for the payout rail.
func (f *ConsumerFacade) RequestWithdrawal(ctx context.Context, amount int64, destination string) (*model.LedgerEntry, error) {
	s := f.svc
	if amount <= 0 {
		return nil, invalid("amount", "must be positive")
	}
	if amount < s.minimumWithdrawal {
		return nil, fmt.Errorf("amount %d, minimum %d: %w", amount, s.minimumWithdrawal, ErrBelowMinimum)
	}
	destination = strings.TrimSpace(destination)

	var entry *model.LedgerEntry
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(ctx, f.caller.ID)
		if err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}
		if amount > w.Balance {
			return fmt.Errorf("amount %d, available %d: %w", amount, w.Balance, ErrInsufficientBalance)
		}

		now := s.clock()
		entry = &model.LedgerEntry{
			ID:        uuid.New(),
			UserID:    f.caller.ID,
			Kind:      model.EntryWithdrawal,
			Status:    model.EntryPending,
			Amount:    amount,
			CreatedAt: now,
		}
		if destination != "" {
			entry.Destination = &destination
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to record withdrawal: %w", err)
		}

		w.Balance -= amount
		w.TotalWithdrawn += amount
		w.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "withdrawal requested", "withdrawal_id", entry.ID, "user_id", entry.UserID, "amount", amount)
	s.publish(ctx, events.TypeWithdrawalRequested, entry.CreatedAt, events.WithdrawalRequested{
		WithdrawalID: entry.ID,
		UserID:       entry.UserID,
		Amount:       entry.Amount,
		Destination:  destination,
	})
	return entry, nil
}
