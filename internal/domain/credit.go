package domain

import "time"

// PackageKind separates paid balance from the one-shot preview
// entitlement. Preview packages share the used/total row shape but are
// excluded from every paid total, so a trial credit can never leak
// into a paid-balance calculation.
type PackageKind string

const (
	KindPaid    PackageKind = "paid"
	KindPreview PackageKind = "preview"
)

// GrantSource records where a credit package came from.
type GrantSource string

const (
	SourcePurchase GrantSource = "purchase"
	SourceTransfer GrantSource = "transfer"
	SourcePromo    GrantSource = "promo"
	SourcePreview  GrantSource = "preview"
)

// CreditPackage is one prepaid grant of credits. Exhausted packages
// (UsedUnits == TotalUnits) are kept for audit, never deleted.
type CreditPackage struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"ownerId"`
	PlanID      string      `json:"planId"`
	Kind        PackageKind `json:"kind"`
	TotalUnits  int         `json:"totalUnits"`
	UsedUnits   int         `json:"usedUnits"`
	Source      GrantSource `json:"source"`
	SourceRef   string      `json:"sourceRef,omitempty"`
	Active      bool        `json:"active"`
	PurchasedAt time.Time   `json:"purchasedAt"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
}

// Remaining returns the unspent units on the package.
func (p CreditPackage) Remaining() int {
	return p.TotalUnits - p.UsedUnits
}

// CreditSource identifies where a spendable credit would be drawn from.
type CreditSource string

const (
	SourceKindPackage      CreditSource = "package"
	SourceKindSubscription CreditSource = "subscription"
)

// AvailabilitySource is one entry of the ranked source list returned
// by the availability read. The list order matches consumption
// dispatch order.
type AvailabilitySource struct {
	Type      CreditSource `json:"type"`
	Remaining int          `json:"remaining"`
	RenewsAt  *time.Time   `json:"renewsAt,omitempty"`
}

// Availability is the single read consumers use to decide whether an
// account may start an order. PreviewAvailable is deliberately never
// added into TotalAvailable.
type Availability struct {
	TotalAvailable   int                  `json:"totalAvailable"`
	HasCredits       bool                 `json:"hasCredits"`
	PreviewAvailable bool                 `json:"previewAvailable"`
	Sources          []AvailabilitySource `json:"sources"`
}

// SubscriptionPeriod is the derived, never-persisted quota for the
// current external billing cycle.
type SubscriptionPeriod struct {
	PlanID      string    `json:"planId"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	QuotaTotal  int       `json:"quotaTotal"`
	UnitsUsed   int       `json:"unitsUsed"`
}

// Remaining returns the unconsumed quota, clamped at zero.
func (p SubscriptionPeriod) Remaining() int {
	if r := p.QuotaTotal - p.UnitsUsed; r > 0 {
		return r
	}
	return 0
}

// OrderStatus values that count as "the credit was actually drawn".
// Abandoned and failed orders never consume quota.
var CreditConsumingStatuses = []string{"paid", "generating", "completed"}
