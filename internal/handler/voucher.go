package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/songforge/creditd/internal/contextkeys"
	"github.com/songforge/creditd/internal/domain"
)

// VoucherValidator is the voucher engine surface the handler needs.
type VoucherValidator interface {
	Validate(ctx context.Context, code, planID, userID string) (*domain.VoucherQuote, error)
	Redeem(ctx context.Context, code, userID, orderID, planID string) (*domain.VoucherQuote, error)
}

// VoucherHandler serves voucher validation and redemption.
type VoucherHandler struct {
	svc      VoucherValidator
	validate *validator.Validate
}

// NewVoucherHandler creates a new VoucherHandler.
func NewVoucherHandler(svc VoucherValidator) *VoucherHandler {
	return &VoucherHandler{svc: svc, validate: validator.New()}
}

type validateVoucherRequest struct {
	Code string `json:"code" validate:"required,min=3,max=64"`
	Plan string `json:"plan" validate:"required"`
}

// Validate handles POST /api/vouchers/validate. Works for anonymous
// callers too: the quote is a preview, not a redemption.
func (h *VoucherHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("code and plan are required"))
		return
	}

	// Empty when unauthenticated; skips only the per-user cap.
	userID, _ := r.Context().Value(contextkeys.UserID).(string)

	q, err := h.svc.Validate(r.Context(), req.Code, req.Plan, userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, q)
}

type redeemVoucherRequest struct {
	Code    string `json:"code" validate:"required,min=3,max=64"`
	Plan    string `json:"plan" validate:"required"`
	OrderID string `json:"orderId" validate:"required,uuid4"`
}

// Redeem handles POST /api/vouchers/redeem.
func (h *VoucherHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		Error(w, domain.ErrUnauthorized("unauthorized"))
		return
	}

	var req redeemVoucherRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("code, plan and orderId are required"))
		return
	}

	q, err := h.svc.Redeem(r.Context(), req.Code, userID, req.OrderID, req.Plan)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, q)
}
