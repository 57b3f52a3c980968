package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/songforge/creditd/internal/domain"
)

// OrderFunder marks which credit source paid for an order, exactly
// once per order. FundFromSubscription re-checks the quota inside the
// same store transaction that marks the order, under a per-owner lock.
type OrderFunder interface {
	MarkFunded(ctx context.Context, orderID, ownerID string, source domain.CreditSource) (bool, error)
	FundFromSubscription(ctx context.Context, orderID, ownerID string, periodStart, periodEnd time.Time, family domain.PlanFamily, statuses []string, quota int) (bool, error)
}

// AggregatorService is the single read path for "can this account
// proceed" and the single dispatcher that spends a credit for an
// order.
//
// Consumption policy, deliberately fixed and mirrored in the sources
// ranking: package balance drains first (it is a depletable purchased
// asset with no renewal), subscription quota second. Changing this
// order changes which balance silently drains first for existing
// users.
type AggregatorService struct {
	ledger *LedgerService
	quota  *QuotaService
	orders OrderFunder
}

// NewAggregatorService creates a new AggregatorService.
func NewAggregatorService(ledger *LedgerService, quota *QuotaService, orders OrderFunder) *AggregatorService {
	return &AggregatorService{ledger: ledger, quota: quota, orders: orders}
}

// Availability composes package balance, subscription quota and the
// preview flag into one spendable view. The preview entitlement is
// reported separately and never added into TotalAvailable, so a trial
// credit cannot be mistaken for purchased balance downstream.
func (s *AggregatorService) Availability(ctx context.Context, ownerID string) (*domain.Availability, error) {
	packages, err := s.ledger.TotalAvailable(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	preview, err := s.ledger.PreviewAvailable(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// Billing failures are absorbed inside the quota service (fail
	// closed), so this read cannot break availability.
	period, err := s.quota.CurrentPeriod(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	av := &domain.Availability{
		PreviewAvailable: preview,
		Sources: []domain.AvailabilitySource{
			{Type: domain.SourceKindPackage, Remaining: packages},
		},
	}
	av.TotalAvailable = packages

	if period != nil {
		renews := period.PeriodEnd
		av.Sources = append(av.Sources, domain.AvailabilitySource{
			Type:      domain.SourceKindSubscription,
			Remaining: period.Remaining(),
			RenewsAt:  &renews,
		})
		av.TotalAvailable += period.Remaining()
	}

	av.HasCredits = av.TotalAvailable > 0
	return av, nil
}

// ReserveForOrder spends exactly one credit from exactly one source
// for the given order. Package balance is tried first; subscription
// quota is the fallback. The order's funded_by column is the
// once-per-order guard: marking it is conditional, and for the
// subscription source the marked order row itself is the consumption
// record the next quota computation counts.
func (s *AggregatorService) ReserveForOrder(ctx context.Context, ownerID, orderID string) (domain.CreditSource, error) {
	packageIDs, err := s.ledger.Reserve(ctx, ownerID, 1)
	if err == nil {
		marked, merr := s.orders.MarkFunded(ctx, orderID, ownerID, domain.SourceKindPackage)
		if merr != nil {
			// Keep balances honest before reporting the failure.
			s.release(ctx, packageIDs[0])
			return "", merr
		}
		if !marked {
			s.release(ctx, packageIDs[0])
			return "", domain.ErrAlreadyUsed("a credit was already reserved for this order")
		}
		return domain.SourceKindPackage, nil
	}
	if !domain.IsKind(err, domain.KindInsufficientCredits) {
		return "", err
	}

	period, err := s.quota.CurrentPeriod(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if period == nil || period.Remaining() < 1 {
		return "", domain.ErrInsufficientCredits("you don't have enough credits")
	}

	// The remaining check above is only a cheap pre-filter. The store
	// re-counts the period's drawn units and marks the order in one
	// serialized transaction, so concurrent dispatchers cannot observe
	// the same stale remaining and jointly overdraw the quota.
	marked, err := s.orders.FundFromSubscription(ctx, orderID, ownerID,
		period.PeriodStart, period.PeriodEnd, domain.FamilySubscription,
		domain.CreditConsumingStatuses, period.QuotaTotal)
	if err != nil {
		return "", err
	}
	if !marked {
		return "", domain.ErrAlreadyUsed("a credit was already reserved for this order")
	}
	return domain.SourceKindSubscription, nil
}

// release hands a reserved unit back after a failed downstream step.
// The failure is logged rather than returned: the caller is already on
// an error path and the imbalance must not stay invisible.
func (s *AggregatorService) release(ctx context.Context, packageID string) {
	if err := s.ledger.Release(ctx, packageID, 1); err != nil {
		slog.Error("release reserved unit", "package", packageID, "error", err)
	}
}
