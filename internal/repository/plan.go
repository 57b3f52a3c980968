package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/songforge/creditd/internal/domain"
)

// PlanRepository loads the plan catalog. Plans are seeded by
// migration and read once at startup, so every component shares one
// plan→credit mapping.
type PlanRepository struct {
	db *pgxpool.Pool
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// LoadCatalog reads all plans into an in-memory catalog.
func (r *PlanRepository) LoadCatalog(ctx context.Context) (*domain.PlanCatalog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, family, price_cents, credits, active
		FROM plans
		ORDER BY price_cents, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Family, &p.PriceCents, &p.Credits, &p.Active); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.NewPlanCatalog(plans), nil
}
