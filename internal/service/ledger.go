package service

import (
	"context"
	"time"

	"github.com/songforge/creditd/internal/domain"
)

// PackageStore is the ledger's view of credit package storage. The
// implementation guarantees that Reserve and ReservePreview are atomic
// conditional mutations.
type PackageStore interface {
	ListAvailable(ctx context.Context, ownerID string) ([]domain.CreditPackage, error)
	TotalAvailable(ctx context.Context, ownerID string) (int, error)
	Reserve(ctx context.Context, ownerID string, units int) ([]string, error)
	Release(ctx context.Context, packageID string, units int) error
	Grant(ctx context.Context, pkg *domain.CreditPackage) error
	PreviewAvailable(ctx context.Context, ownerID string) (bool, error)
	ReservePreview(ctx context.Context, ownerID string) error
	FindByID(ctx context.Context, id string) (*domain.CreditPackage, error)
}

// LedgerService is the authoritative balance for all non-subscription
// credit sources: purchases, transfers and promotional grants,
// consumed oldest-first.
type LedgerService struct {
	packages PackageStore
	catalog  *domain.PlanCatalog
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(packages PackageStore, catalog *domain.PlanCatalog) *LedgerService {
	return &LedgerService{packages: packages, catalog: catalog}
}

// ListAvailable returns the owner's spendable packages in consumption
// order.
func (s *LedgerService) ListAvailable(ctx context.Context, ownerID string) ([]domain.CreditPackage, error) {
	return s.packages.ListAvailable(ctx, ownerID)
}

// TotalAvailable returns the owner's paid balance.
func (s *LedgerService) TotalAvailable(ctx context.Context, ownerID string) (int, error) {
	return s.packages.TotalAvailable(ctx, ownerID)
}

// Reserve consumes units oldest-first. It either reserves all
// requested units or fails with ErrInsufficientCredits and mutates
// nothing. The returned ids identify the absorbing packages.
func (s *LedgerService) Reserve(ctx context.Context, ownerID string, units int) ([]string, error) {
	return s.packages.Reserve(ctx, ownerID, units)
}

// Release returns units to a package after a failed downstream step.
func (s *LedgerService) Release(ctx context.Context, packageID string, units int) error {
	return s.packages.Release(ctx, packageID, units)
}

// GrantPurchase creates a package for a settled plan purchase, sized
// by the plan catalog.
func (s *LedgerService) GrantPurchase(ctx context.Context, ownerID, planID, paymentRef string) (*domain.CreditPackage, error) {
	plan, ok := s.catalog.Get(planID)
	if !ok || !plan.Active {
		return nil, domain.ErrValidation("unknown plan: " + planID)
	}
	if plan.Family == domain.FamilySubscription {
		return nil, domain.ErrValidation("subscription plans do not grant prepaid packages")
	}
	return s.grant(ctx, ownerID, planID, plan.Credits, domain.SourcePurchase, paymentRef)
}

// GrantTransfer creates the one-unit package the recipient of an
// accepted transfer receives.
func (s *LedgerService) GrantTransfer(ctx context.Context, ownerID, planID, transferID string) (*domain.CreditPackage, error) {
	return s.grant(ctx, ownerID, planID, 1, domain.SourceTransfer, transferID)
}

// GrantPromo creates a promotional package of arbitrary size.
func (s *LedgerService) GrantPromo(ctx context.Context, ownerID, planID string, units int, reason string) (*domain.CreditPackage, error) {
	if units < 1 {
		return nil, domain.ErrValidation("grant must be at least one unit")
	}
	return s.grant(ctx, ownerID, planID, units, domain.SourcePromo, reason)
}

// GrantPreview issues the one-shot preview entitlement. The partial
// unique index on (owner, kind='preview') makes a second grant fail at
// the store.
func (s *LedgerService) GrantPreview(ctx context.Context, ownerID string) error {
	pkg := &domain.CreditPackage{
		OwnerID:     ownerID,
		PlanID:      "single",
		Kind:        domain.KindPreview,
		TotalUnits:  1,
		Source:      domain.SourcePreview,
		Active:      true,
		PurchasedAt: time.Now(),
	}
	return s.packages.Grant(ctx, pkg)
}

// PreviewAvailable reports whether the one-shot preview credit is
// still unspent. Kept out of TotalAvailable on purpose.
func (s *LedgerService) PreviewAvailable(ctx context.Context, ownerID string) (bool, error) {
	return s.packages.PreviewAvailable(ctx, ownerID)
}

// ReservePreview consumes the preview entitlement.
func (s *LedgerService) ReservePreview(ctx context.Context, ownerID string) error {
	return s.packages.ReservePreview(ctx, ownerID)
}

// PackagePlan returns the plan id of a package, used when an accepted
// transfer inherits the sender's plan family.
func (s *LedgerService) PackagePlan(ctx context.Context, packageID string) (string, error) {
	pkg, err := s.packages.FindByID(ctx, packageID)
	if err != nil {
		return "", err
	}
	if pkg == nil {
		return "", domain.ErrNotFound("package not found")
	}
	return pkg.PlanID, nil
}

func (s *LedgerService) grant(ctx context.Context, ownerID, planID string, units int, source domain.GrantSource, ref string) (*domain.CreditPackage, error) {
	pkg := &domain.CreditPackage{
		OwnerID:     ownerID,
		PlanID:      planID,
		Kind:        domain.KindPaid,
		TotalUnits:  units,
		Source:      source,
		SourceRef:   ref,
		Active:      true,
		PurchasedAt: time.Now(),
	}
	if err := s.packages.Grant(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}
