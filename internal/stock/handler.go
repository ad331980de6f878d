package stock

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/laadstock/internal/platform/httpx"
)

// Handler wires HTTP endpoints for deliveries, lots and the combined stock view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/combined", h.handleCombined)
	r.Route("/deliveries", func(r chi.Router) {
		r.Post("/", h.handleCreateDelivery)
		r.Get("/{id}", h.handleGetDelivery)
		r.Get("/{id}/lots", h.handleListLots)
		r.Post("/{id}/lots", h.handleCreateLot)
	})
	r.Route("/lots", func(r chi.Router) {
		r.Get("/{id}", h.handleGetLot)
		r.Post("/{id}/merge", h.handleMergeLot)
	})
}

func (h *Handler) handleCombined(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.CombinedStock(r.Context())
	if err != nil {
		h.fail(w, "combined stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": units})
}

func (h *Handler) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var input CreateDeliveryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	delivery, err := h.service.CreateDelivery(r.Context(), input, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "create delivery", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, delivery)
}

func (h *Handler) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	delivery, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		h.fail(w, "get delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lots, err := h.service.ListLots(r.Context(), id)
	if err != nil {
		h.fail(w, "list lots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": lots})
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateLotInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.DeliveryID = id
	lot, err := h.service.CreateLot(r.Context(), input, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "create lot", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.fail(w, "get lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleMergeLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input MergeLotInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.MergeIntoLot(r.Context(), id, input, httpx.ActorID(r))
	if err != nil {
		h.fail(w, "merge lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
