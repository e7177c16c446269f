// Package money holds the campaign budget arithmetic. All amounts are int64
// minor currency units; ratios go through decimal so rounding is exact.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	DiscountPercent = 40
	RewardPercent   = 40
	PlatformPercent = 100 - DiscountPercent - RewardPercent
)

var (
	hundred = decimal.NewFromInt(100)

	ErrNonPositive = errors.New("amount must be positive")
)

// Split is the 40/40/20 allocation of a campaign budget
type Split struct {
	Budget         int64 `json:"budget"`
	DiscountAmount int64 `json:"discount_amount"`
	ReferrerReward int64 `json:"referrer_reward"`
	PlatformFee    int64 `json:"platform_fee"`
}

// Total returns the sum of the three shares
func (s Split) Total() int64 {
	return s.DiscountAmount + s.ReferrerReward + s.PlatformFee
}

// SplitBudget allocates budget into discount, reward and platform fee.
// Discount and reward are rounded half-up to the minor unit and the
// platform fee takes the remainder, so the shares always sum to budget.
func SplitBudget(budget int64) (Split, error) {
	if budget <= 0 {
		return Split{}, fmt.Errorf("budget %d: %w", budget, ErrNonPositive)
	}

	discount := Percent(budget, decimal.NewFromInt(DiscountPercent))
	reward := Percent(budget, decimal.NewFromInt(RewardPercent))

	return Split{
		Budget:         budget,
		DiscountAmount: discount,
		ReferrerReward: reward,
		PlatformFee:    budget - discount - reward,
	}, nil
}

// Percent returns amount*pct/100 rounded half-up to the minor unit
func Percent(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

// BudgetFromPercent resolves a percentage-of-list-price budget to an
// absolute amount. pct may carry a fractional part ("12.5").
func BudgetFromPercent(listPrice int64, pct decimal.Decimal) (int64, error) {
	if listPrice <= 0 {
		return 0, fmt.Errorf("list price %d: %w", listPrice, ErrNonPositive)
	}
	if !pct.IsPositive() {
		return 0, fmt.Errorf("budget percent %s: %w", pct.String(), ErrNonPositive)
	}
	return Percent(listPrice, pct), nil
}
