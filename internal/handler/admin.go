package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/songforge/creditd/internal/domain"
)

// VoucherAdmin is the voucher administration surface.
type VoucherAdmin interface {
	Create(ctx context.Context, v *domain.Voucher) error
	Deactivate(ctx context.Context, id string) error
}

// PromoGranter issues promotional credits and preview entitlements.
type PromoGranter interface {
	GrantPromo(ctx context.Context, ownerID, planID string, units int, reason string) (*domain.CreditPackage, error)
	GrantPreview(ctx context.Context, ownerID string) error
}

// AdminHandler serves the operator surface: voucher management and
// promotional grants. Routes are gated by the AdminOnly middleware.
type AdminHandler struct {
	vouchers VoucherAdmin
	ledger   PromoGranter
	validate *validator.Validate
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(vouchers VoucherAdmin, ledger PromoGranter) *AdminHandler {
	return &AdminHandler{vouchers: vouchers, ledger: ledger, validate: validator.New()}
}

type createVoucherRequest struct {
	Code            string     `json:"code" validate:"required,min=3,max=64"`
	DiscountType    string     `json:"discountType" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue   int64      `json:"discountValue" validate:"required,gt=0"`
	ValidFrom       *time.Time `json:"validFrom"`
	ValidUntil      *time.Time `json:"validUntil"`
	MaxUses         int        `json:"maxUses" validate:"gte=0"`
	MaxUsesPerUser  int        `json:"maxUsesPerUser" validate:"gte=0"`
	AllowedFamilies []string   `json:"allowedFamilies"`
}

// CreateVoucher handles POST /api/admin/vouchers.
func (h *AdminHandler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req createVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("invalid voucher definition"))
		return
	}

	v := &domain.Voucher{
		Code:           req.Code,
		DiscountType:   domain.DiscountType(req.DiscountType),
		DiscountValue:  req.DiscountValue,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		Active:         true,
	}
	for _, f := range req.AllowedFamilies {
		v.AllowedFamilies = append(v.AllowedFamilies, domain.PlanFamily(f))
	}

	if err := h.vouchers.Create(r.Context(), v); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, v)
}

// DeactivateVoucher handles DELETE /api/admin/vouchers/{id}.
func (h *AdminHandler) DeactivateVoucher(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.vouchers.Deactivate(r.Context(), id); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

type grantCreditsRequest struct {
	UserID string `json:"userId" validate:"required"`
	PlanID string `json:"planId" validate:"required"`
	Units  int    `json:"units" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// GrantCredits handles POST /api/admin/credits/grant.
func (h *AdminHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantCreditsRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("userId, planId, positive units and reason are required"))
		return
	}

	pkg, err := h.ledger.GrantPromo(r.Context(), req.UserID, req.PlanID, req.Units, req.Reason)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, pkg)
}

type grantPreviewRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// GrantPreview handles POST /api/admin/credits/preview.
func (h *AdminHandler) GrantPreview(w http.ResponseWriter, r *http.Request) {
	var req grantPreviewRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("userId is required"))
		return
	}

	if err := h.ledger.GrantPreview(r.Context(), req.UserID); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]bool{"granted": true})
}
