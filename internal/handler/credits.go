package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/songforge/creditd/internal/contextkeys"
	"github.com/songforge/creditd/internal/domain"
)

// AvailabilityService is the aggregator surface the handler needs.
type AvailabilityService interface {
	Availability(ctx context.Context, ownerID string) (*domain.Availability, error)
	ReserveForOrder(ctx context.Context, ownerID, orderID string) (domain.CreditSource, error)
}

// CreditsHandler serves the availability read and the consumption
// dispatch.
type CreditsHandler struct {
	svc      AvailabilityService
	validate *validator.Validate
}

// NewCreditsHandler creates a new CreditsHandler.
func NewCreditsHandler(svc AvailabilityService) *CreditsHandler {
	return &CreditsHandler{svc: svc, validate: validator.New()}
}

// Availability handles GET /api/credits/availability.
func (h *CreditsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		Error(w, domain.ErrUnauthorized("unauthorized"))
		return
	}

	av, err := h.svc.Availability(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, av)
}

type reserveRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
}

// Reserve handles POST /api/credits/reserve.
func (h *CreditsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		Error(w, domain.ErrUnauthorized("unauthorized"))
		return
	}

	var req reserveRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("orderId must be a valid order reference"))
		return
	}

	source, err := h.svc.ReserveForOrder(r.Context(), userID, req.OrderID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"source":  source,
	})
}
