package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/songforge/creditd/internal/domain"
)

// PackageRepository handles database operations for credit packages.
// It is the only writer of used_units; every mutation goes through the
// conditional updates below, which is what makes the no-double-spend
// guarantee enforceable in one place.
type PackageRepository struct {
	db *pgxpool.Pool
}

// NewPackageRepository creates a new PackageRepository.
func NewPackageRepository(db *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{db: db}
}

const packageColumns = `id, owner_id, plan_id, kind, total_units, used_units, source, source_ref, active, purchased_at, expires_at`

func scanPackage(row pgx.Row) (*domain.CreditPackage, error) {
	var p domain.CreditPackage
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.PlanID, &p.Kind, &p.TotalUnits, &p.UsedUnits,
		&p.Source, &p.SourceRef, &p.Active, &p.PurchasedAt, &p.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAvailable returns the owner's active paid packages that still
// have unspent units, oldest purchase first (id as tie-break for
// determinism).
func (r *PackageRepository) ListAvailable(ctx context.Context, ownerID string) ([]domain.CreditPackage, error) {
	query := `
		SELECT ` + packageColumns + `
		FROM credit_packages
		WHERE owner_id = $1 AND kind = 'paid' AND active
		  AND used_units < total_units
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY purchased_at, id
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditPackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// TotalAvailable sums the unspent units over the owner's paid
// packages. Preview entitlements are never counted here.
func (r *PackageRepository) TotalAvailable(ctx context.Context, ownerID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(total_units - used_units), 0)
		FROM credit_packages
		WHERE owner_id = $1 AND kind = 'paid' AND active
		  AND used_units < total_units
		  AND (expires_at IS NULL OR expires_at > NOW())
	`
	var total int
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("total available: %w", err)
	}
	return total, nil
}

// Reserve marks units consumed across the owner's paid packages,
// oldest first, inside a single transaction. The FIFO rows are locked
// with FOR UPDATE before the balance check, so two concurrent
// reservations cannot both observe a stale total and jointly overdraw.
// On success it returns the ids of the packages that absorbed the
// reservation; on a short balance it returns ErrInsufficientCredits
// and mutates nothing.
func (r *PackageRepository) Reserve(ctx context.Context, ownerID string, units int) ([]string, error) {
	if units <= 0 {
		return nil, domain.ErrValidation("units must be positive")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, total_units - used_units
		FROM credit_packages
		WHERE owner_id = $1 AND kind = 'paid' AND active
		  AND used_units < total_units
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY purchased_at, id
		FOR UPDATE
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lock packages: %w", err)
	}

	type slot struct {
		id        string
		remaining int
	}
	var slots []slot
	total := 0
	for rows.Next() {
		var s slot
		if err := rows.Scan(&s.id, &s.remaining); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan package slot: %w", err)
		}
		slots = append(slots, s)
		total += s.remaining
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read package slots: %w", err)
	}

	if total < units {
		return nil, domain.ErrInsufficientCredits("not enough credits to reserve")
	}

	var consumed []string
	left := units
	for _, s := range slots {
		if left == 0 {
			break
		}
		take := s.remaining
		if take > left {
			take = left
		}
		tag, err := tx.Exec(ctx, `
			UPDATE credit_packages
			SET used_units = used_units + $1
			WHERE id = $2 AND used_units + $1 <= total_units
		`, take, s.id)
		if err != nil {
			return nil, fmt.Errorf("consume package %s: %w", s.id, err)
		}
		if tag.RowsAffected() != 1 {
			// Cannot happen while the row is locked; treat as a bug.
			return nil, domain.ErrInternal("package changed during reservation", nil)
		}
		consumed = append(consumed, s.id)
		left -= take
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return consumed, nil
}

// Grant inserts a new credit package for the owner.
func (r *PackageRepository) Grant(ctx context.Context, pkg *domain.CreditPackage) error {
	if pkg.ID == "" {
		pkg.ID = uuid.New().String()
	}
	if pkg.PurchasedAt.IsZero() {
		pkg.PurchasedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO credit_packages (`+packageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		pkg.ID, pkg.OwnerID, pkg.PlanID, pkg.Kind, pkg.TotalUnits, pkg.UsedUnits,
		pkg.Source, pkg.SourceRef, pkg.Active, pkg.PurchasedAt, pkg.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("grant package: %w", err)
	}
	return nil
}

// PreviewAvailable reports whether the owner still holds an unspent
// preview entitlement.
func (r *PackageRepository) PreviewAvailable(ctx context.Context, ownerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM credit_packages
			WHERE owner_id = $1 AND kind = 'preview' AND active
			  AND used_units < total_units
		)
	`
	var ok bool
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("preview available: %w", err)
	}
	return ok, nil
}

// ReservePreview consumes the owner's preview entitlement with a
// single conditional update.
func (r *PackageRepository) ReservePreview(ctx context.Context, ownerID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE credit_packages
		SET used_units = used_units + 1
		WHERE owner_id = $1 AND kind = 'preview' AND active
		  AND used_units < total_units
	`, ownerID)
	if err != nil {
		return fmt.Errorf("reserve preview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientCredits("no preview credit available")
	}
	return nil
}

// Release hands units back to a package after a reservation that
// could not be completed downstream. Conditional so it can never push
// used_units below zero.
func (r *PackageRepository) Release(ctx context.Context, packageID string, units int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE credit_packages
		SET used_units = used_units - $1
		WHERE id = $2 AND used_units >= $1
	`, units, packageID)
	if err != nil {
		return fmt.Errorf("release package %s: %w", packageID, err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrInternal("package release did not apply", nil)
	}
	return nil
}

// FindByID returns a single package row.
func (r *PackageRepository) FindByID(ctx context.Context, id string) (*domain.CreditPackage, error) {
	row := r.db.QueryRow(ctx, `SELECT `+packageColumns+` FROM credit_packages WHERE id = $1`, id)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find package: %w", err)
	}
	return p, nil
}
