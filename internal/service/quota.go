package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/songforge/creditd/internal/billing"
	"github.com/songforge/creditd/internal/domain"
)

// OrderCounter counts credit-consuming orders inside a billing period.
type OrderCounter interface {
	CountCreditConsuming(ctx context.Context, ownerID string, createdAfter, createdBefore time.Time, family domain.PlanFamily, statuses []string) (int, error)
}

// QuotaService derives the spendable subscription quota for the
// current external billing cycle. Nothing is persisted or cached: the
// billing system owns period boundaries and allotment, the local order
// history owns consumption, and both are read fresh on every call.
// When billing is slow or down the quota reads as zero: correctness
// favors under-granting over over-granting.
type QuotaService struct {
	billing billing.Client
	orders  OrderCounter
	timeout time.Duration
}

// NewQuotaService creates a new QuotaService. The timeout bounds every
// billing lookup.
func NewQuotaService(billingClient billing.Client, orders OrderCounter, timeout time.Duration) *QuotaService {
	return &QuotaService{billing: billingClient, orders: orders, timeout: timeout}
}

// CurrentPeriod resolves the owner's active billing period. "No active
// plan", a timeout and a billing error all collapse to (nil, nil):
// zero quota, no error surfaced to the availability read.
func (s *QuotaService) CurrentPeriod(ctx context.Context, ownerID string) (*domain.SubscriptionPeriod, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	plan, err := s.billing.ActivePlan(lookupCtx, ownerID)
	if err != nil {
		// Fail closed.
		slog.Warn("billing lookup failed, treating as no quota", "owner", ownerID, "error", err)
		return nil, nil
	}
	if plan == nil {
		return nil, nil
	}

	used, err := s.orders.CountCreditConsuming(ctx, ownerID, plan.PeriodStart, plan.PeriodEnd,
		domain.FamilySubscription, domain.CreditConsumingStatuses)
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionPeriod{
		PlanID:      plan.PlanID,
		PeriodStart: plan.PeriodStart,
		PeriodEnd:   plan.PeriodEnd,
		QuotaTotal:  plan.QuotaTotal,
		UnitsUsed:   used,
	}, nil
}

// Remaining returns the unconsumed quota for the current period, zero
// when no period is active.
func (s *QuotaService) Remaining(ctx context.Context, ownerID string) (int, error) {
	period, err := s.CurrentPeriod(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if period == nil {
		return 0, nil
	}
	return period.Remaining(), nil
}
