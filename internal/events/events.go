// Package events publishes domain events after their transaction committed.
// Delivery is best effort; the committed state never depends on it.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Routing keys of the events the engine emits
const (
	TypeRedemptionCompleted = "referral.redemption.completed"
	TypeWithdrawalRequested = "wallet.withdrawal.requested"
)

// Event is the envelope written to the broker
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New wraps data in an envelope with a fresh id
func New(eventType string, occurredAt time.Time, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
	}
}

// RedemptionCompleted is emitted once per settled referral
type RedemptionCompleted struct {
	ReferralID     uuid.UUID `json:"referral_id"`
	CampaignID     uuid.UUID `json:"campaign_id"`
	BusinessID     uuid.UUID `json:"business_id"`
	ReferrerID     string    `json:"referrer_id"`
	Code           string    `json:"code"`
	DiscountAmount int64     `json:"discount_amount"`
	FinalPrice     int64     `json:"final_price"`
	RewardAmount   int64     `json:"reward_amount"`
	PlatformFee    int64     `json:"platform_fee"`
}

// WithdrawalRequested is emitted when a payout is queued for the external rail
type WithdrawalRequested struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	UserID       string    `json:"user_id"`
	Amount       int64     `json:"amount"`
	Destination  string    `json:"destination,omitempty"`
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "domain event", "event_id", e.ID, "type", e.Type, "data", e.Data)
	return nil
}
