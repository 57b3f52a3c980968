package handler

import (
	"net/http"

	"github.com/songforge/creditd/internal/domain"
)

// PlansHandler serves the plan catalog.
type PlansHandler struct {
	catalog *domain.PlanCatalog
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(catalog *domain.PlanCatalog) *PlansHandler {
	return &PlansHandler{catalog: catalog}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.catalog.List())
}
