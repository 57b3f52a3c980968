package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/songforge/creditd/internal/domain"
)

// VoucherStore is the engine's view of voucher storage. Redeem is an
// atomic conditional mutation.
type VoucherStore interface {
	FindByCode(ctx context.Context, code string) (*domain.Voucher, error)
	CountRedemptions(ctx context.Context, voucherID, userID string) (int, error)
	Redeem(ctx context.Context, red *domain.VoucherRedemption, maxUses, maxPerUser int) error
	Create(ctx context.Context, v *domain.Voucher) error
	Deactivate(ctx context.Context, id string) error
}

// VoucherService validates promotional codes and computes discounted
// prices. Vouchers affect price only; whether a discounted order
// still consumes a credit is the caller's business rule.
type VoucherService struct {
	store   VoucherStore
	catalog *domain.PlanCatalog
	now     func() time.Time
}

// NewVoucherService creates a new VoucherService.
func NewVoucherService(store VoucherStore, catalog *domain.PlanCatalog) *VoucherService {
	return &VoucherService{store: store, catalog: catalog, now: time.Now}
}

// Validate runs the validation pipeline against a plan and user and
// returns a price quote. userID may be empty for anonymous browsing,
// which skips only the per-user cap (redemption still requires an
// identified account). The pipeline short-circuits on the first
// failing check.
func (s *VoucherService) Validate(ctx context.Context, code, planID, userID string) (*domain.VoucherQuote, error) {
	_, q, err := s.validate(ctx, code, planID, userID)
	return q, err
}

func (s *VoucherService) validate(ctx context.Context, code, planID, userID string) (*domain.Voucher, *domain.VoucherQuote, error) {
	plan, ok := s.catalog.Get(planID)
	if !ok || !plan.Active {
		return nil, nil, domain.ErrValidation("unknown plan: " + planID)
	}

	voucher, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if voucher == nil || !voucher.Active {
		return nil, nil, domain.ErrNotFound("this code is invalid")
	}

	now := s.now()
	if voucher.ValidFrom != nil && now.Before(*voucher.ValidFrom) {
		return nil, nil, domain.ErrExpired("this code is not active yet")
	}
	if voucher.ValidUntil != nil && now.After(*voucher.ValidUntil) {
		return nil, nil, domain.ErrExpired("this code has expired")
	}

	if voucher.MaxUses > 0 && voucher.UsageCount >= voucher.MaxUses {
		return nil, nil, domain.ErrAlreadyUsed("this code has reached its usage limit")
	}

	if len(voucher.AllowedFamilies) > 0 {
		family := domain.NormalizeFamily(planID)
		if !slices.Contains(voucher.AllowedFamilies, family) {
			return nil, nil, domain.ErrValidation("this code does not apply to the selected plan")
		}
	}

	if voucher.MaxUsesPerUser > 0 && userID != "" {
		used, err := s.store.CountRedemptions(ctx, voucher.ID, userID)
		if err != nil {
			return nil, nil, err
		}
		if used >= voucher.MaxUsesPerUser {
			return nil, nil, domain.ErrAlreadyUsed("you have already used this code")
		}
	}

	return voucher, quote(voucher, plan.PriceCents), nil
}

// Redeem validates and then records one use of the voucher for an
// order. The store guards the usage counter and the (voucher, user,
// order) uniqueness, so a double redemption race loses cleanly.
func (s *VoucherService) Redeem(ctx context.Context, code, userID, orderID, planID string) (*domain.VoucherQuote, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized("redeeming a code requires an account")
	}
	if orderID == "" {
		return nil, domain.ErrValidation("order id is required")
	}

	voucher, q, err := s.validate(ctx, code, planID, userID)
	if err != nil {
		return nil, err
	}

	red := &domain.VoucherRedemption{
		VoucherID:       voucher.ID,
		UserID:          userID,
		OrderID:         orderID,
		DiscountApplied: q.DiscountAmount,
	}
	if err := s.store.Redeem(ctx, red, voucher.MaxUses, voucher.MaxUsesPerUser); err != nil {
		return nil, err
	}
	return q, nil
}

// Create registers a new voucher (admin surface).
func (s *VoucherService) Create(ctx context.Context, v *domain.Voucher) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	if v.Code == "" {
		return domain.ErrValidation("code is required")
	}
	switch v.DiscountType {
	case domain.DiscountPercentage:
		if v.DiscountValue < 1 || v.DiscountValue > 100 {
			return domain.ErrValidation("percentage must be between 1 and 100")
		}
	case domain.DiscountFixedAmount:
		if v.DiscountValue < 1 {
			return domain.ErrValidation("fixed amount must be positive")
		}
	default:
		return domain.ErrValidation("unknown discount type")
	}
	return s.store.Create(ctx, v)
}

// Deactivate turns a voucher off (admin surface).
func (s *VoucherService) Deactivate(ctx context.Context, id string) error {
	return s.store.Deactivate(ctx, id)
}

// quote computes the discounted price. Percentage math runs through
// decimal with half-up rounding; a zero final price is a valid
// fully-comped outcome.
func quote(v *domain.Voucher, priceCents int64) *domain.VoucherQuote {
	var discount int64
	switch v.DiscountType {
	case domain.DiscountPercentage:
		discount = decimal.NewFromInt(priceCents).
			Mul(decimal.NewFromInt(v.DiscountValue)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case domain.DiscountFixedAmount:
		discount = min(v.DiscountValue, priceCents)
	}

	final := priceCents - discount
	if final < 0 {
		final = 0
	}

	return &domain.VoucherQuote{
		Code:           v.Code,
		OriginalPrice:  priceCents,
		DiscountAmount: discount,
		FinalPrice:     final,
		IsFree:         final == 0,
	}
}
