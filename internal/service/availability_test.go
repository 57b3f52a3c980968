package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/songforge/creditd/internal/billing"
	"github.com/songforge/creditd/internal/domain"
)

func newAggregatorFixture(bill billing.Client, orders *memOrders) (*AggregatorService, *memPackages) {
	packages := &memPackages{}
	ledger := NewLedgerService(packages, testCatalog())
	quota := NewQuotaService(bill, orders, 2*time.Second)
	return NewAggregatorService(ledger, quota, orders), packages
}

func TestAvailabilityComposition(t *testing.T) {
	periodStart := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	bill := stubBilling{plan: &billing.Plan{
		PlanID: "subscription_monthly", QuotaTotal: 50,
		PeriodStart: periodStart, PeriodEnd: periodEnd,
	}}
	orders := &memOrders{count: 12}
	svc, packages := newAggregatorFixture(bill, orders)

	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "album", TotalUnits: 5, UsedUnits: 2, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "single", Kind: domain.KindPreview, TotalUnits: 1, Active: true,
		PurchasedAt: time.Now().Add(-2 * time.Hour),
	})

	av, err := svc.Availability(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("availability failed: %v", err)
	}

	// 3 package units + 38 subscription units; the preview entitlement
	// is flagged but never counted.
	if av.TotalAvailable != 41 {
		t.Fatalf("expected total 41, got %d", av.TotalAvailable)
	}
	if !av.HasCredits {
		t.Fatal("expected hasCredits")
	}
	if !av.PreviewAvailable {
		t.Fatal("expected preview available")
	}
	if len(av.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(av.Sources))
	}
	if av.Sources[0].Type != domain.SourceKindPackage || av.Sources[0].Remaining != 3 {
		t.Fatalf("unexpected first source: %+v", av.Sources[0])
	}
	if av.Sources[1].Type != domain.SourceKindSubscription || av.Sources[1].Remaining != 38 {
		t.Fatalf("unexpected second source: %+v", av.Sources[1])
	}
	if av.Sources[1].RenewsAt == nil || !av.Sources[1].RenewsAt.Equal(periodEnd) {
		t.Fatalf("expected renewsAt %v, got %v", periodEnd, av.Sources[1].RenewsAt)
	}
}

func TestAvailabilityWithoutSubscription(t *testing.T) {
	svc, packages := newAggregatorFixture(stubBilling{}, &memOrders{})
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "single", TotalUnits: 1, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})

	av, err := svc.Availability(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("availability failed: %v", err)
	}
	if av.TotalAvailable != 1 {
		t.Fatalf("expected total 1, got %d", av.TotalAvailable)
	}
	if len(av.Sources) != 1 {
		t.Fatalf("expected only the package source, got %+v", av.Sources)
	}
}

func TestAvailabilityEmptyAccount(t *testing.T) {
	svc, _ := newAggregatorFixture(stubBilling{}, &memOrders{})

	av, err := svc.Availability(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("availability failed: %v", err)
	}
	if av.TotalAvailable != 0 || av.HasCredits || av.PreviewAvailable {
		t.Fatalf("expected empty availability, got %+v", av)
	}
}

func TestReserveForOrderPrefersPackage(t *testing.T) {
	periodStart := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	bill := stubBilling{plan: &billing.Plan{
		PlanID: "subscription_monthly", QuotaTotal: 50,
		PeriodStart: periodStart, PeriodEnd: periodStart.AddDate(0, 1, 0),
	}}
	orders := &memOrders{}
	svc, packages := newAggregatorFixture(bill, orders)
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "single", TotalUnits: 1, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})

	source, err := svc.ReserveForOrder(context.Background(), "user-1", "order-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if source != domain.SourceKindPackage {
		t.Fatalf("expected package source, got %q", source)
	}

	// Package exhausted; next order draws from the subscription.
	source, err = svc.ReserveForOrder(context.Background(), "user-1", "order-2")
	if err != nil {
		t.Fatalf("fallback reserve failed: %v", err)
	}
	if source != domain.SourceKindSubscription {
		t.Fatalf("expected subscription source, got %q", source)
	}
}

func TestReserveForOrderExhausted(t *testing.T) {
	svc, _ := newAggregatorFixture(stubBilling{}, &memOrders{})

	_, err := svc.ReserveForOrder(context.Background(), "user-1", "order-1")
	if !domain.IsKind(err, domain.KindInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
}

func TestReserveForOrderOncePerOrder(t *testing.T) {
	orders := &memOrders{}
	svc, packages := newAggregatorFixture(stubBilling{}, orders)
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "album", TotalUnits: 5, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})

	if _, err := svc.ReserveForOrder(context.Background(), "user-1", "order-1"); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	_, err := svc.ReserveForOrder(context.Background(), "user-1", "order-1")
	if !domain.IsKind(err, domain.KindAlreadyUsed) {
		t.Fatalf("expected already used, got %v", err)
	}

	// The duplicate attempt must hand its reserved unit back.
	total, _ := packages.TotalAvailable(context.Background(), "user-1")
	if total != 4 {
		t.Fatalf("expected 4 units left, got %d", total)
	}
}

func TestReserveFIFOAcrossPackages(t *testing.T) {
	svc, packages := newAggregatorFixture(stubBilling{}, &memOrders{})
	old := packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "single", TotalUnits: 1, Active: true,
		PurchasedAt: time.Now().Add(-48 * time.Hour),
	})
	recent := packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "album", TotalUnits: 5, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})

	if _, err := svc.ReserveForOrder(context.Background(), "user-1", "order-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	oldest, _ := packages.FindByID(context.Background(), old.ID)
	newest, _ := packages.FindByID(context.Background(), recent.ID)
	if oldest.UsedUnits != 1 {
		t.Fatalf("expected oldest package consumed first, used=%d", oldest.UsedUnits)
	}
	if newest.UsedUnits != 0 {
		t.Fatalf("newer package should be untouched, used=%d", newest.UsedUnits)
	}
}

func TestSubscriptionDrawConcurrentNeverOverdraws(t *testing.T) {
	periodStart := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	bill := stubBilling{plan: &billing.Plan{
		PlanID: "subscription_monthly", QuotaTotal: 1,
		PeriodStart: periodStart, PeriodEnd: periodStart.AddDate(0, 1, 0),
	}}
	orders := &memOrders{}
	svc, _ := newAggregatorFixture(bill, orders)

	// No packages: every dispatcher falls through to the subscription
	// quota at the same time.
	const callers = 5
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ReserveForOrder(context.Background(), "user-1", fmt.Sprintf("order-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !domain.IsKind(err, domain.KindInsufficientCredits) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 funded order from a quota of 1, got %d", succeeded)
	}

	remaining, err := NewQuotaService(bill, orders, 2*time.Second).Remaining(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected quota fully drawn, got remaining %d", remaining)
	}
}

func TestReserveForOrderConcurrentNeverOversells(t *testing.T) {
	svc, packages := newAggregatorFixture(stubBilling{}, &memOrders{})
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "album", TotalUnits: 5, Active: true,
		PurchasedAt: time.Now().Add(-time.Hour),
	})
	packages.add(domain.CreditPackage{
		OwnerID: "user-1", PlanID: "album", TotalUnits: 5, Active: true,
		PurchasedAt: time.Now().Add(-30 * time.Minute),
	})

	const callers = 50
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ReserveForOrder(context.Background(), "user-1", fmt.Sprintf("order-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !domain.IsKind(err, domain.KindInsufficientCredits) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", succeeded)
	}

	total, _ := packages.TotalAvailable(context.Background(), "user-1")
	if total != 0 {
		t.Fatalf("expected balance fully drained, got %d", total)
	}
}
