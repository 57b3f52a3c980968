package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/songforge/creditd/internal/contextkeys"
	"github.com/songforge/creditd/internal/domain"
)

// TransferWorkflow is the transfer surface the handler needs.
type TransferWorkflow interface {
	Create(ctx context.Context, senderID, recipientEmail, message string) (*domain.CreditTransfer, error)
	Get(ctx context.Context, code string) (*domain.CreditTransfer, error)
	Accept(ctx context.Context, code, userID string) (*domain.CreditTransfer, error)
}

// TransferHandler serves credit gifting.
type TransferHandler struct {
	svc      TransferWorkflow
	validate *validator.Validate
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(svc TransferWorkflow) *TransferHandler {
	return &TransferHandler{svc: svc, validate: validator.New()}
}

type createTransferRequest struct {
	RecipientEmail string `json:"recipientEmail" validate:"omitempty,email"`
	Message        string `json:"message" validate:"max=500"`
}

// Create handles POST /api/transfers.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		Error(w, domain.ErrUnauthorized("unauthorized"))
		return
	}

	var req createTransferRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, domain.ErrValidation("recipientEmail must be a valid email"))
		return
	}

	transfer, err := h.svc.Create(r.Context(), userID, req.RecipientEmail, req.Message)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"code":      transfer.Code,
		"expiresAt": transfer.ExpiresAt,
	})
}

// Get handles GET /api/transfers/{code}, letting a recipient preview
// the gift before accepting.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"sender":    transfer.SenderID,
		"message":   transfer.Message,
		"status":    transfer.Status,
		"expiresAt": transfer.ExpiresAt,
	})
}

// Accept handles POST /api/transfers/{code}/accept.
func (h *TransferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		Error(w, domain.ErrUnauthorized("unauthorized"))
		return
	}

	transfer, err := h.svc.Accept(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"creditsGranted": 1,
		"transferId":     transfer.ID,
	})
}
