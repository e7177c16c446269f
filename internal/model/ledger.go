package model

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind distinguishes credits from debits in the wallet ledger
type EntryKind string

const (
	EntryEarning    EntryKind = "earning"
	EntryWithdrawal EntryKind = "withdrawal"
)

// EntryStatus tracks external processing of a ledger entry. Earnings are
// created completed; withdrawals start pending until the payout rail settles.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// LedgerEntry is an append-only wallet movement. Amount is always positive;
// Kind gives the direction.
type LedgerEntry struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"user_id"`
	Kind        EntryKind   `db:"kind" json:"kind"`
	Status      EntryStatus `db:"status" json:"status"`
	Amount      int64       `db:"amount" json:"amount"`
	ReferralID  *uuid.UUID  `db:"referral_id" json:"referral_id,omitempty"`
	CampaignID  *uuid.UUID  `db:"campaign_id" json:"campaign_id,omitempty"`
	BusinessID  *uuid.UUID  `db:"business_id" json:"business_id,omitempty"`
	Destination *string     `db:"destination" json:"destination,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Signed returns the amount with the sign of its effect on the balance
func (e *LedgerEntry) Signed() int64 {
	if e.Kind == EntryWithdrawal {
		return -e.Amount
	}
	return e.Amount
}

// Cursor returns the keyset position right after e
func (e *LedgerEntry) Cursor() LedgerCursor {
	return LedgerCursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// LedgerCursor is a keyset position in the newest-first ledger ordering
type LedgerCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// LedgerQuery selects one page of a user's ledger, newest first
type LedgerQuery struct {
	Kind  *EntryKind
	After *LedgerCursor
	Limit int
}

// Wallet is the maintained balance of a consumer
type Wallet struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Balance        int64     `db:"balance" json:"balance"`
	TotalEarned    int64     `db:"total_earned" json:"total_earned"`
	TotalWithdrawn int64     `db:"total_withdrawn" json:"total_withdrawn"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
