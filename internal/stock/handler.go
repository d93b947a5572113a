package stock

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

// Handler manages stock ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, ledger *Ledger, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		ledger:   ledger,
		validate: validator.New(),
		rbac:     rbac,
	}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/items", h.listItems)
		r.Get("/items/{productID}", h.getItem)
		r.Get("/items/{productID}/movements", h.listMovements)
		r.Get("/movements", h.listChallanMovements)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockCorrect))
		r.Post("/movements", h.postMovement)
	})
}

// PostMovementRequest is a manual stock correction. Outbound deliveries are
// posted by challan completion only, so OUT is not accepted here.
type PostMovementRequest struct {
	ProductID    string  `json:"product_id" validate:"required,max=64"`
	MovementType string  `json:"movement_type" validate:"required,oneof=IN RETURN ADJUSTMENT"`
	Quantity     float64 `json:"quantity" validate:"gte=0"`
	Reason       string  `json:"reason" validate:"required,max=500"`
	RequestKey   string  `json:"request_key,omitempty" validate:"omitempty,max=128"`
}

type itemResponse struct {
	Item
	Status ItemStatus `json:"status"`
}

type movementResponse struct {
	Movement Movement `json:"movement"`
	Item     itemResponse
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())

	var req PostMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "malformed body", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.ErrValidation, "invalid movement", err))
		return
	}

	movement, item, err := h.ledger.UpdateStock(r.Context(), MovementInput{
		ProductID:  req.ProductID,
		Type:       MovementType(req.MovementType),
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		ActorID:    actor.EmployeeID,
		RequestKey: req.RequestKey,
	})
	if err != nil {
		h.logger.Warn("post movement", slog.String("product_id", req.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse{
		Movement: movement,
		Item:     itemResponse{Item: item, Status: item.Status()},
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	item, err := h.ledger.GetItem(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponse{Item: item, Status: item.Status()})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	limit, offset := shared.NewPagination(page, perPage, 0).LimitOffset()

	items, total, err := h.ledger.ListItems(r.Context(), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	responses := make([]itemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, itemResponse{Item: item, Status: item.Status()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      responses,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.ledger.ListMovements(r.Context(), MovementFilter{ProductID: productID, Limit: limit})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

// listChallanMovements returns the ledger rows a delivery posted, for audit
// of what actually shipped against a challan.
func (h *Handler) listChallanMovements(w http.ResponseWriter, r *http.Request) {
	challanID, err := uuid.Parse(r.URL.Query().Get("challan_id"))
	if err != nil {
		httpx.RespondError(w, shared.E(shared.ErrValidation, "challan_id query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.ledger.ListMovements(r.Context(), MovementFilter{ChallanID: &challanID, Limit: limit})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}
