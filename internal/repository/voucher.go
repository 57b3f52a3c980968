package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/songforge/creditd/internal/domain"
)

// VoucherRepository handles database operations for vouchers and
// their redemptions.
type VoucherRepository struct {
	db *pgxpool.Pool
}

// NewVoucherRepository creates a new VoucherRepository.
func NewVoucherRepository(db *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{db: db}
}

const voucherColumns = `id, code, discount_type, discount_value, valid_from, valid_until, max_uses, max_uses_per_user, allowed_families, active, usage_count, created_at`

func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	var v domain.Voucher
	var families []string
	err := row.Scan(
		&v.ID, &v.Code, &v.DiscountType, &v.DiscountValue, &v.ValidFrom, &v.ValidUntil,
		&v.MaxUses, &v.MaxUsesPerUser, &families, &v.Active, &v.UsageCount, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, f := range families {
		v.AllowedFamilies = append(v.AllowedFamilies, domain.PlanFamily(f))
	}
	return &v, nil
}

// FindByCode looks a voucher up case-insensitively.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE LOWER(code) = LOWER($1)`,
		strings.TrimSpace(code),
	)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find voucher: %w", err)
	}
	return v, nil
}

// CountRedemptions returns how many times a user has redeemed a voucher.
func (r *VoucherRepository) CountRedemptions(ctx context.Context, voucherID, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = $1 AND user_id = $2`,
		voucherID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return count, nil
}

// Redeem records one use of a voucher inside a single transaction.
// The usage counter is advanced with a conditional update (it only
// fires while under the global cap) and the redemption insert is
// protected by the unique (voucher, user, order) constraint, so two
// racing redemptions of the same order cannot both land.
func (r *VoucherRepository) Redeem(ctx context.Context, red *domain.VoucherRedemption, maxUses, maxPerUser int) error {
	if red.ID == "" {
		red.ID = uuid.New().String()
	}
	if red.RedeemedAt.IsZero() {
		red.RedeemedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redeem: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE vouchers
		SET usage_count = usage_count + 1
		WHERE id = $1 AND active AND ($2 = 0 OR usage_count < $2)
	`, red.VoucherID, maxUses)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyUsed("this code has reached its usage limit")
	}

	if maxPerUser > 0 {
		var used int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = $1 AND user_id = $2`,
			red.VoucherID, red.UserID,
		).Scan(&used)
		if err != nil {
			return fmt.Errorf("recheck per-user cap: %w", err)
		}
		if used >= maxPerUser {
			return domain.ErrAlreadyUsed("you have already used this code")
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO voucher_redemptions (id, voucher_id, user_id, order_id, discount_applied, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, red.ID, red.VoucherID, red.UserID, red.OrderID, red.DiscountApplied, red.RedeemedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyUsed("this code was already applied to the order")
		}
		return fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit redeem: %w", err)
	}
	return nil
}

// Create inserts a new voucher.
func (r *VoucherRepository) Create(ctx context.Context, v *domain.Voucher) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	families := make([]string, 0, len(v.AllowedFamilies))
	for _, f := range v.AllowedFamilies {
		families = append(families, string(f))
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO vouchers (`+voucherColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		v.ID, v.Code, v.DiscountType, v.DiscountValue, v.ValidFrom, v.ValidUntil,
		v.MaxUses, v.MaxUsesPerUser, families, v.Active, v.UsageCount, v.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyUsed("a voucher with this code already exists")
		}
		return fmt.Errorf("create voucher: %w", err)
	}
	return nil
}

// Deactivate turns a voucher off without deleting its audit trail.
func (r *VoucherRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE vouchers SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("voucher not found")
	}
	return nil
}
