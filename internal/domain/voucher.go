package domain

import "time"

// DiscountType selects how a voucher's value is applied to a price.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Voucher is a promotional code that discounts the price of an order.
// Vouchers affect price only; they never touch the credit ledger.
type Voucher struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	DiscountType DiscountType `json:"discountType"`
	// DiscountValue is a percentage (0–100) or an amount in cents,
	// depending on DiscountType.
	DiscountValue int64      `json:"discountValue"`
	ValidFrom     *time.Time `json:"validFrom,omitempty"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	// MaxUses caps total redemptions; zero means unlimited.
	MaxUses int `json:"maxUses,omitempty"`
	// MaxUsesPerUser caps redemptions per account; zero means unlimited.
	MaxUsesPerUser int `json:"maxUsesPerUser,omitempty"`
	// AllowedFamilies restricts the voucher to plan families; empty
	// means any plan.
	AllowedFamilies []PlanFamily `json:"allowedFamilies,omitempty"`
	Active          bool         `json:"active"`
	UsageCount      int          `json:"usageCount"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// VoucherRedemption is one use of a voucher by one user on one order.
// Its existence is the enforcement record for per-user caps and the
// audit trail of the discount applied.
type VoucherRedemption struct {
	ID              string    `json:"id"`
	VoucherID       string    `json:"voucherId"`
	UserID          string    `json:"userId"`
	OrderID         string    `json:"orderId"`
	DiscountApplied int64     `json:"discountApplied"`
	RedeemedAt      time.Time `json:"redeemedAt"`
}

// VoucherQuote is the outcome of validating a voucher against a plan.
// A zero FinalPrice is a valid fully-comped outcome.
type VoucherQuote struct {
	Code           string `json:"code"`
	OriginalPrice  int64  `json:"originalPrice"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalPrice     int64  `json:"finalPrice"`
	IsFree         bool   `json:"isFree"`
}
