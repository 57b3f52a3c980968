package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/songforge/creditd/internal/billing"
)

func TestQuotaRemaining(t *testing.T) {
	periodStart := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		billing stubBilling
		used    int
		want    int
	}{
		{
			name: "partially consumed period",
			billing: stubBilling{plan: &billing.Plan{
				PlanID: "subscription_monthly", QuotaTotal: 50,
				PeriodStart: periodStart, PeriodEnd: periodEnd,
			}},
			used: 12,
			want: 38,
		},
		{
			name: "fully consumed period",
			billing: stubBilling{plan: &billing.Plan{
				PlanID: "subscription_monthly", QuotaTotal: 50,
				PeriodStart: periodStart, PeriodEnd: periodEnd,
			}},
			used: 50,
			want: 0,
		},
		{
			name: "overdrawn period clamps at zero",
			billing: stubBilling{plan: &billing.Plan{
				PlanID: "subscription_monthly", QuotaTotal: 50,
				PeriodStart: periodStart, PeriodEnd: periodEnd,
			}},
			used: 53,
			want: 0,
		},
		{
			name:    "no active plan",
			billing: stubBilling{},
			want:    0,
		},
		{
			name:    "billing outage reads as zero quota",
			billing: stubBilling{err: errors.New("connection refused")},
			used:    12,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &memOrders{count: tt.used}
			svc := NewQuotaService(tt.billing, orders, 2*time.Second)

			got, err := svc.Remaining(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected remaining=%d, got %d", tt.want, got)
			}
		})
	}
}

func TestQuotaBillingErrorNeverSurfaces(t *testing.T) {
	svc := NewQuotaService(stubBilling{err: errors.New("upstream 503")}, &memOrders{}, time.Second)

	period, err := svc.CurrentPeriod(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("billing failure must not surface: %v", err)
	}
	if period != nil {
		t.Fatalf("expected no period on billing failure, got %+v", period)
	}
}

func TestQuotaSlowBillingTimesOut(t *testing.T) {
	// The lookup context carries the configured timeout; a client that
	// honors it returns a deadline error, which reads as zero quota.
	slow := billingFunc(func(ctx context.Context, accountID string) (*billing.Plan, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &billing.Plan{QuotaTotal: 50}, nil
		}
	})
	svc := NewQuotaService(slow, &memOrders{}, 10*time.Millisecond)

	got, err := svc.Remaining(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("timeout must not surface: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected zero quota on timeout, got %d", got)
	}
}

type billingFunc func(ctx context.Context, accountID string) (*billing.Plan, error)

func (f billingFunc) ActivePlan(ctx context.Context, accountID string) (*billing.Plan, error) {
	return f(ctx, accountID)
}
