package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/consignment"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/middleware"
	"github.com/ukydev/fleet-rental/internal/models"
)

const maxListLimit = 200

// ConsignmentHandler exposes the consignment workflow over HTTP.
type ConsignmentHandler struct {
	service *consignment.Service
}

// NewConsignmentHandler creates a consignment handler.
func NewConsignmentHandler(service *consignment.Service) *ConsignmentHandler {
	return &ConsignmentHandler{service: service}
}

// SubmitResponse acknowledges a stored submission.
type SubmitResponse struct {
	ID     string                   `json:"id"`
	Status models.ConsignmentStatus `json:"status"`
}

// PromoteRequest names the consignment to turn into a fleet vehicle.
type PromoteRequest struct {
	ConsignmentID string `json:"consignmentId"`
}

// Submit handles POST /api/consignments. No session is required.
func (h *ConsignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req consignment.SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	c, err := h.service.Submit(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, SubmitResponse{ID: c.ID, Status: c.Status})
}

// Get handles GET /api/consignments/{id}.
func (h *ConsignmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	c, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

// List handles GET /api/consignments?status=&limit=.
func (h *ConsignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	var filter db.ConsignmentFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := models.ConsignmentStatus(strings.ToLower(raw))
		if !models.IsValidConsignmentStatus(status) {
			httpx.WriteError(w, apperr.Validation(map[string]string{"status": "is not a valid status"}))
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 || limit > maxListLimit {
			httpx.WriteError(w, apperr.Validation(map[string]string{"limit": "must be between 1 and 200"}))
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.List(r.Context(), p, filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// Update handles PATCH /api/consignments/{id}.
func (h *ConsignmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req consignment.TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.Status = models.ConsignmentStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))

	p, _ := middleware.PrincipalFromContext(r.Context())
	c, err := h.service.Transition(r.Context(), p, chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

// Promote handles POST /api/vehicles/create-from-consignment. A consignment
// that is missing or not yet approved is reported as not found.
func (h *ConsignmentHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.ConsignmentID = strings.TrimSpace(req.ConsignmentID)
	if req.ConsignmentID == "" {
		httpx.WriteError(w, apperr.Validation(map[string]string{"consignmentId": "is required"}))
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	vehicle, err := h.service.Promote(r.Context(), p, req.ConsignmentID)
	if apperr.Is(err, apperr.KindInvalidTransition) {
		err = &apperr.Error{Kind: apperr.KindNotFound, Message: "consignment not found or not approved", Err: err}
	}
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, vehicle)
}
