package conversion

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-crm/meridian-crm/internal/challan"
	"github.com/meridian-crm/meridian-crm/internal/platform/httpx"
	"github.com/meridian-crm/meridian-crm/internal/rbac"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Handler exposes lead conversion over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		rbac:     rbac,
	}
}

// MountRoutes registers conversion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLeadConvert)).Post("/", h.convert)
	r.With(h.rbac.RequireAny(shared.PermChallanView)).Get("/leads/{ref}", h.getLead)
}

// ConvertRequest converts a closed lead into a delivery challan.
type ConvertRequest struct {
	OrderRef   string              `json:"order_ref" validate:"required,max=64"`
	EmployeeID int64               `json:"employee_id" validate:"required"`
	Lines      []challan.LineInput `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())

	var req ConvertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "malformed body", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "invalid conversion request", err))
		return
	}

	result, err := h.service.ConvertClosedLead(r.Context(), ConvertInput{
		OrderRef:   req.OrderRef,
		EmployeeID: req.EmployeeID,
		Lines:      req.Lines,
		ActorID:    actor.EmployeeID,
	})
	if err != nil {
		h.logger.Warn("convert lead", slog.String("order_ref", req.OrderRef), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.service.GetLead(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lead)
}
