package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/laadstock/internal/platform/httpx"
	"github.com/odyssey-erp/laadstock/internal/shared"
)

// IdempotencyHeader carries the client-chosen replay key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreateSale)
	r.Get("/", h.handleListByLot)
	r.Post("/mix-orders", h.handleCreateMixOrder)
	r.Get("/{id}", h.handleGetSale)
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	req.ActorID = httpx.ActorID(r)
	sale, err := h.service.CreateSale(r.Context(), req)
	if err != nil {
		h.logger.Warn("create sale", slog.Int64("lot_id", req.LotID), slog.Int("bags_sold", req.BagsSold), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleCreateMixOrder(w http.ResponseWriter, r *http.Request) {
	var req MixOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	req.ActorID = httpx.ActorID(r)
	result, err := h.service.CreateMixOrder(r.Context(), req)
	if err != nil {
		h.logger.Warn("create mix order", slog.Int("items", len(req.Items)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleListByLot(w http.ResponseWriter, r *http.Request) {
	lotID, err := strconv.ParseInt(r.URL.Query().Get("lot_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ValidationError("lot_id query parameter required"))
		return
	}
	sales, err := h.service.ListSalesByLot(r.Context(), lotID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": sales})
}
