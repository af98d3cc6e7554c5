package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/middleware"
	"github.com/ukydev/fleet-rental/internal/users"
)

// UserAdminHandler exposes user administration.
type UserAdminHandler struct {
	service *users.Service
}

// NewUserAdminHandler creates a user administration handler.
func NewUserAdminHandler(service *users.Service) *UserAdminHandler {
	return &UserAdminHandler{service: service}
}

// Apply handles PATCH /api/admin/users with {userId, action, data}.
func (h *UserAdminHandler) Apply(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthenticated())
		return
	}

	var cmd users.Command
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.WriteError(w, err)
		return
	}

	result, err := h.service.Apply(r.Context(), p, cmd)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}
