package directory

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-crm/meridian-crm/internal/platform/httpx"
	"github.com/meridian-crm/meridian-crm/internal/rbac"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Handler exposes employee resolution for display and assignment pickers.
type Handler struct {
	resolver *Resolver
	rbac     rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(resolver *Resolver, rbac rbac.Middleware) *Handler {
	return &Handler{resolver: resolver, rbac: rbac}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermChallanView)).Get("/employees/{id}", h.getEmployee)
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.E(shared.ErrValidation, "invalid employee id"))
		return
	}
	emp, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, emp)
}
