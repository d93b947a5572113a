package challan

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-crm/internal/platform/httpx"
	"github.com/meridian-crm/meridian-crm/internal/rbac"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Handler exposes the challan lifecycle over HTTP. Role gating happens here
// at the boundary; the service itself trusts the actor it is handed.
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

// MountRoutes registers challan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChallanView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChallanRaise))
		r.Post("/", h.raise)
	})
	r.With(h.rbac.RequireAny(shared.PermChallanSubmitPO)).Post("/{id}/submit-po", h.submitPO)
	r.With(h.rbac.RequireAny(shared.PermChallanSubmitManager)).Post("/{id}/submit-to-manager", h.submitToManager)
	r.With(h.rbac.RequireAny(shared.PermChallanForward)).Post("/{id}/forward", h.forward)
	r.With(h.rbac.RequireAny(shared.PermChallanAllocate)).Post("/{id}/allocate", h.allocate)
	r.With(h.rbac.RequireAny(shared.PermChallanComplete)).Post("/{id}/complete", h.complete)
	r.With(h.rbac.RequireAny(shared.PermChallanHold)).Post("/{id}/hold", h.hold)
	r.With(h.rbac.RequireAny(shared.PermChallanHold)).Post("/{id}/resume", h.resume)
}

// RaiseRequest creates or fetches the challan for an order.
type RaiseRequest struct {
	OrderRef        string      `json:"order_ref" validate:"required,max=64"`
	OwnerEmployeeID int64       `json:"owner_employee_id" validate:"required"`
	Lines           []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// SubmitPORequest attaches PO evidence.
type SubmitPORequest struct {
	DocumentRef string `json:"document_ref" validate:"required,max=512"`
}

// SubmitToManagerRequest sends the challan for review.
type SubmitToManagerRequest struct {
	RequestedQuantity float64 `json:"requested_quantity" validate:"required,gt=0"`
	Remarks           string  `json:"remarks" validate:"max=1000"`
}

// CompleteRequest closes out the delivery.
type CompleteRequest struct {
	Carrier     string `json:"carrier" validate:"max=128"`
	TrackingRef string `json:"tracking_ref" validate:"max=128"`
}

// HoldRequest parks the challan.
type HoldRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type lineResponse struct {
	ProductLine
	Total string `json:"total"`
}

type challanResponse struct {
	DeliveryChallan
	Lines []lineResponse `json:"lines"`
}

func toResponse(ch DeliveryChallan) challanResponse {
	resp := challanResponse{DeliveryChallan: ch, Lines: make([]lineResponse, 0, len(ch.Lines))}
	for _, line := range ch.Lines {
		resp.Lines = append(resp.Lines, lineResponse{ProductLine: line, Total: line.Total().String()})
	}
	return resp
}

func (h *Handler) raise(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())

	var req RaiseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "malformed body", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "invalid raise request", err))
		return
	}

	ch, err := h.service.Raise(r.Context(), RaiseInput{
		OrderRef:        req.OrderRef,
		OwnerEmployeeID: req.OwnerEmployeeID,
		Lines:           req.Lines,
		ActorID:         actor.EmployeeID,
	})
	if err != nil {
		h.logger.Warn("raise challan", slog.String("order_ref", req.OrderRef), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ch))
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		var req SubmitPORequest
		if err := h.decode(r, &req); err != nil {
			return DeliveryChallan{}, err
		}
		return h.service.SubmitPO(r.Context(), id, req.DocumentRef, actor.EmployeeID)
	})
}

func (h *Handler) submitToManager(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		var req SubmitToManagerRequest
		if err := h.decode(r, &req); err != nil {
			return DeliveryChallan{}, err
		}
		return h.service.SubmitToManager(r.Context(), id, req.RequestedQuantity, req.Remarks, actor.EmployeeID)
	})
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		return h.service.ForwardToAllocation(r.Context(), id, actor.EmployeeID)
	})
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		return h.service.Allocate(r.Context(), id, actor.EmployeeID)
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		var req CompleteRequest
		if err := h.decode(r, &req); err != nil {
			return DeliveryChallan{}, err
		}
		return h.service.Complete(r.Context(), id, ShipmentInfo{Carrier: req.Carrier, TrackingRef: req.TrackingRef}, actor.EmployeeID)
	})
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		var req HoldRequest
		if err := h.decode(r, &req); err != nil {
			return DeliveryChallan{}, err
		}
		return h.service.Hold(r.Context(), id, req.Reason, actor.EmployeeID)
	})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor shared.Actor) (DeliveryChallan, error) {
		return h.service.Resume(r.Context(), id, actor.EmployeeID)
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.ErrValidation, "invalid challan id"))
		return
	}
	ch, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ch))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	owner, _ := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	limit, offset := shared.NewPagination(page, perPage, 0).LimitOffset()

	challans, total, err := h.service.List(r.Context(), ListFilter{
		Status:          Status(r.URL.Query().Get("status")),
		OwnerEmployeeID: owner,
		OrderRef:        r.URL.Query().Get("order_ref"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	responses := make([]challanResponse, 0, len(challans))
	for _, ch := range challans {
		responses = append(responses, toResponse(ch))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"challans":   responses,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

// transition factors the shared id-parse / respond shape of lifecycle posts.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID, shared.Actor) (DeliveryChallan, error)) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.ErrValidation, "invalid challan id"))
		return
	}
	ch, err := fn(id, actor)
	if err != nil {
		h.logger.Warn("challan transition", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ch))
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return shared.Wrap(shared.ErrValidation, "malformed body", err)
	}
	if err := h.validate.Struct(target); err != nil {
		return shared.Wrap(shared.ErrValidation, "invalid request", err)
	}
	return nil
}
