package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/songforge/creditd/internal/billing"
	"github.com/songforge/creditd/internal/domain"
	"github.com/songforge/creditd/internal/notify"
)

func testCatalog() *domain.PlanCatalog {
	return domain.NewPlanCatalog([]domain.Plan{
		{ID: "single", Name: "Single Song", Family: domain.FamilySingle, PriceCents: 990, Credits: 1, Active: true},
		{ID: "single_instrumental", Name: "Single Instrumental", Family: domain.FamilySingle, PriceCents: 990, Credits: 1, Active: true},
		{ID: "album", Name: "Album", Family: domain.FamilyAlbum, PriceCents: 2490, Credits: 5, Active: true},
		{ID: "subscription_monthly", Name: "Creator Monthly", Family: domain.FamilySubscription, PriceCents: 1990, Credits: 50, Active: true},
	})
}

// memPackages is an in-memory PackageStore whose Reserve mirrors the
// conditional semantics of the SQL implementation: check and mutate
// under one lock, all or nothing.
type memPackages struct {
	mu       sync.Mutex
	packages []*domain.CreditPackage
	nextID   int
	grantErr error
}

func (m *memPackages) add(p domain.CreditPackage) *domain.CreditPackage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if p.ID == "" {
		p.ID = fmt.Sprintf("pkg-%d", m.nextID)
	}
	if p.Kind == "" {
		p.Kind = domain.KindPaid
	}
	cp := p
	m.packages = append(m.packages, &cp)
	return &cp
}

func (m *memPackages) fifo(ownerID string) []*domain.CreditPackage {
	var out []*domain.CreditPackage
	for _, p := range m.packages {
		if p.OwnerID == ownerID && p.Kind == domain.KindPaid && p.Active && p.UsedUnits < p.TotalUnits {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memPackages) ListAvailable(ctx context.Context, ownerID string) ([]domain.CreditPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditPackage
	for _, p := range m.fifo(ownerID) {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memPackages) TotalAvailable(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, p := range m.fifo(ownerID) {
		total += p.Remaining()
	}
	return total, nil
}

func (m *memPackages) Reserve(ctx context.Context, ownerID string, units int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := m.fifo(ownerID)
	total := 0
	for _, p := range slots {
		total += p.Remaining()
	}
	if total < units {
		return nil, domain.ErrInsufficientCredits("not enough credits to reserve")
	}

	var consumed []string
	left := units
	for _, p := range slots {
		if left == 0 {
			break
		}
		take := p.Remaining()
		if take > left {
			take = left
		}
		p.UsedUnits += take
		consumed = append(consumed, p.ID)
		left -= take
	}
	return consumed, nil
}

func (m *memPackages) Release(ctx context.Context, packageID string, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.ID == packageID && p.UsedUnits >= units {
			p.UsedUnits -= units
			return nil
		}
	}
	return domain.ErrInternal("package release did not apply", nil)
}

func (m *memPackages) Grant(ctx context.Context, pkg *domain.CreditPackage) error {
	m.mu.Lock()
	err := m.grantErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	granted := m.add(*pkg)
	pkg.ID = granted.ID
	return nil
}

func (m *memPackages) PreviewAvailable(ctx context.Context, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.OwnerID == ownerID && p.Kind == domain.KindPreview && p.Active && p.UsedUnits < p.TotalUnits {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPackages) ReservePreview(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.OwnerID == ownerID && p.Kind == domain.KindPreview && p.Active && p.UsedUnits < p.TotalUnits {
			p.UsedUnits++
			return nil
		}
	}
	return domain.ErrInsufficientCredits("no preview credit available")
}

func (m *memPackages) FindByID(ctx context.Context, id string) (*domain.CreditPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// memTransfers is an in-memory TransferStore; Accept is conditional
// under the lock like the SQL implementation.
type memTransfers struct {
	mu        sync.Mutex
	transfers []*domain.CreditTransfer
	nextID    int
}

func (m *memTransfers) Create(ctx context.Context, t *domain.CreditTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if t.ID == "" {
		t.ID = fmt.Sprintf("tr-%d", m.nextID)
	}
	cp := *t
	m.transfers = append(m.transfers, &cp)
	return nil
}

func (m *memTransfers) FindByCode(ctx context.Context, code string) (*domain.CreditTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTransfers) LatestBySender(ctx context.Context, senderID string) (*domain.CreditTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.CreditTransfer
	for _, t := range m.transfers {
		if t.SenderID != senderID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memTransfers) Accept(ctx context.Context, code, recipientID string, now time.Time) (*domain.CreditTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.Code != code {
			continue
		}
		if t.Status != domain.TransferPending || now.After(t.ExpiresAt) {
			return nil, nil
		}
		t.Status = domain.TransferAccepted
		t.RecipientID = recipientID
		acceptedAt := now
		t.AcceptedAt = &acceptedAt
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memTransfers) Reopen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.ID == id && t.Status == domain.TransferAccepted {
			t.Status = domain.TransferPending
			t.AcceptedAt = nil
			return nil
		}
	}
	return domain.ErrInternal("transfer reopen did not apply", nil)
}

// memOrders implements OrderCounter and OrderFunder. Like the SQL
// store, subscription-funded orders count as drawn units, and the
// quota re-check in FundFromSubscription happens under the same lock
// as the mark.
type memOrders struct {
	mu     sync.Mutex
	count  int
	funded map[string]domain.CreditSource
}

func (m *memOrders) subscriptionDrawsLocked() int {
	n := 0
	for _, src := range m.funded {
		if src == domain.SourceKindSubscription {
			n++
		}
	}
	return n
}

func (m *memOrders) CountCreditConsuming(ctx context.Context, ownerID string, after, before time.Time, family domain.PlanFamily, statuses []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count + m.subscriptionDrawsLocked(), nil
}

func (m *memOrders) MarkFunded(ctx context.Context, orderID, ownerID string, source domain.CreditSource) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.funded == nil {
		m.funded = make(map[string]domain.CreditSource)
	}
	if _, ok := m.funded[orderID]; ok {
		return false, nil
	}
	m.funded[orderID] = source
	return true, nil
}

func (m *memOrders) FundFromSubscription(ctx context.Context, orderID, ownerID string, periodStart, periodEnd time.Time, family domain.PlanFamily, statuses []string, quota int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.funded == nil {
		m.funded = make(map[string]domain.CreditSource)
	}
	if m.count+m.subscriptionDrawsLocked() >= quota {
		return false, domain.ErrInsufficientCredits("you don't have enough credits")
	}
	if _, ok := m.funded[orderID]; ok {
		return false, nil
	}
	m.funded[orderID] = domain.SourceKindSubscription
	return true, nil
}

// stubBilling returns a fixed plan or a fixed error.
type stubBilling struct {
	plan *billing.Plan
	err  error
}

func (s stubBilling) ActivePlan(ctx context.Context, accountID string) (*billing.Plan, error) {
	return s.plan, s.err
}

// stubIdentity resolves from a fixed email→id map.
type stubIdentity struct {
	byEmail    map[string]string
	byID       map[string]string
	resolveErr error
}

func (s stubIdentity) ResolveEmail(ctx context.Context, email string) (string, error) {
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return s.byEmail[email], nil
}

func (s stubIdentity) EmailOf(ctx context.Context, userID string) (string, error) {
	return s.byID[userID], nil
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// stubVouchers is an in-memory VoucherStore with conditional Redeem.
type stubVouchers struct {
	mu          sync.Mutex
	voucher     *domain.Voucher
	redemptions []domain.VoucherRedemption
}

func (s *stubVouchers) FindByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voucher == nil {
		return nil, nil
	}
	cp := *s.voucher
	return &cp, nil
}

func (s *stubVouchers) CountRedemptions(ctx context.Context, voucherID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.redemptions {
		if r.VoucherID == voucherID && r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *stubVouchers) Redeem(ctx context.Context, red *domain.VoucherRedemption, maxUses, maxPerUser int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxUses > 0 && s.voucher.UsageCount >= maxUses {
		return domain.ErrAlreadyUsed("this code has reached its usage limit")
	}
	perUser := 0
	for _, r := range s.redemptions {
		if r.VoucherID == red.VoucherID && r.UserID == red.UserID {
			perUser++
			if r.OrderID == red.OrderID {
				return domain.ErrAlreadyUsed("this code was already applied to the order")
			}
		}
	}
	if maxPerUser > 0 && perUser >= maxPerUser {
		return domain.ErrAlreadyUsed("you have already used this code")
	}
	s.voucher.UsageCount++
	s.redemptions = append(s.redemptions, *red)
	return nil
}

func (s *stubVouchers) Create(ctx context.Context, v *domain.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voucher = v
	return nil
}

func (s *stubVouchers) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voucher == nil || s.voucher.ID != id {
		return domain.ErrNotFound("voucher not found")
	}
	s.voucher.Active = false
	return nil
}
