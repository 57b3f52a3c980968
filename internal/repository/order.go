package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/songforge/creditd/internal/domain"
)

// OrderRepository is the core's read-mostly view of the order store.
// The rest of the storefront owns order creation; this package only
// counts consumption and marks the funding source on reservation.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// An order counts as a drawn quota unit once it is marked
// subscription-funded or has reached a credit-consuming status for the
// given plan family. Shared by the derived-quota read and the draw
// guard below so the two can never disagree.
const drawnUnitsQuery = `
	SELECT COUNT(*)
	FROM orders o
	JOIN plans p ON p.id = o.plan_id
	WHERE o.owner_id = $1
	  AND o.created_at >= $2 AND o.created_at < $3
	  AND (o.funded_by = 'subscription' OR (p.family = $4 AND o.status = ANY($5)))
`

// CountCreditConsuming counts the owner's drawn quota units within
// [createdAfter, createdBefore). Evaluated fresh each call; the
// billing period boundary can move between calls.
func (r *OrderRepository) CountCreditConsuming(ctx context.Context, ownerID string, createdAfter, createdBefore time.Time, family domain.PlanFamily, statuses []string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, drawnUnitsQuery, ownerID, createdAfter, createdBefore, string(family), statuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count consuming orders: %w", err)
	}
	return count, nil
}

// FundFromSubscription marks the order subscription-funded with the
// quota re-checked in the same transaction. A per-owner advisory lock
// serializes concurrent draws, and the drawn-units count includes
// already-funded orders, so each committed draw is visible to the next
// dispatcher's count. Returns false when the order was already funded;
// ErrInsufficientCredits when the quota is exhausted.
func (r *OrderRepository) FundFromSubscription(ctx context.Context, orderID, ownerID string, periodStart, periodEnd time.Time, family domain.PlanFamily, statuses []string, quota int) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin subscription draw: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		return false, fmt.Errorf("lock owner quota: %w", err)
	}

	var used int
	err = tx.QueryRow(ctx, drawnUnitsQuery, ownerID, periodStart, periodEnd, string(family), statuses).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("count drawn units: %w", err)
	}
	if used >= quota {
		return false, domain.ErrInsufficientCredits("you don't have enough credits")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET funded_by = 'subscription', updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND funded_by IS NULL
	`, orderID, ownerID)
	if err != nil {
		return false, fmt.Errorf("mark subscription funded: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit subscription draw: %w", err)
	}
	return true, nil
}

// MarkFunded records which credit source paid for an order. The
// conditional on funded_by IS NULL makes a second reservation for the
// same order a no-op the caller can detect.
func (r *OrderRepository) MarkFunded(ctx context.Context, orderID, ownerID string, source domain.CreditSource) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET funded_by = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND funded_by IS NULL
	`, orderID, ownerID, string(source))
	if err != nil {
		return false, fmt.Errorf("mark order funded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
