package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/songforge/creditd/internal/domain"
)

// PurchaseGranter turns a settled purchase into credits.
type PurchaseGranter interface {
	GrantPurchase(ctx context.Context, ownerID, planID, paymentRef string) (*domain.CreditPackage, error)
}

// WebhookHandler receives purchase-settled callbacks from the payment
// collaborator. Payment capture itself happens elsewhere; by the time
// this fires, the money has moved and the only job left is crediting
// the buyer.
type WebhookHandler struct {
	svc      PurchaseGranter
	secret   string
	validate *validator.Validate
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(svc PurchaseGranter, secret string) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret, validate: validator.New()}
}

type paymentSettledRequest struct {
	UserID     string `json:"userId" validate:"required"`
	PlanID     string `json:"planId" validate:"required"`
	PaymentRef string `json:"paymentRef" validate:"required"`
	Status     string `json:"status" validate:"required"`
}

// PaymentSettled handles POST /api/payment/webhook.
func (h *WebhookHandler) PaymentSettled(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		Error(w, domain.ErrUnauthorized("invalid webhook secret"))
		return
	}

	var req paymentSettledRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("userId, planId, paymentRef and status are required"))
		return
	}

	// Only settled payments grant credits; everything else is an ack.
	if req.Status != "settled" {
		JSON(w, http.StatusOK, map[string]bool{"processed": false})
		return
	}

	pkg, err := h.svc.GrantPurchase(r.Context(), req.UserID, req.PlanID, req.PaymentRef)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"processed": true,
		"packageId": pkg.ID,
		"credits":   pkg.TotalUnits,
	})
}
