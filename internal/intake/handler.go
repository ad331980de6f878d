package intake

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/laadstock/internal/platform/httpx"
	"github.com/odyssey-erp/laadstock/internal/shared"
)

// Handler exposes gate intake endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs intake handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers intake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/intake", func(r chi.Router) {
		r.Post("/arrivals", h.handleRecordArrival)
		r.Get("/arrivals", h.handleListEntries)
		r.Get("/arrivals/{id}", h.handleGetEntry)
		r.Post("/items", h.handlePostItem)
	})
}

func (h *Handler) handleRecordArrival(w http.ResponseWriter, r *http.Request) {
	var input ArrivalInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = httpx.ActorID(r)
	entry, err := h.service.RecordArrival(r.Context(), input)
	if err != nil {
		h.fail(w, "record arrival", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := strconv.ParseInt(r.URL.Query().Get("delivery_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ValidationError("delivery_id query parameter required"))
		return
	}
	entries, err := h.service.ListEntries(r.Context(), deliveryID)
	if err != nil {
		h.fail(w, "list arrivals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, "get arrival", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handlePostItem(w http.ResponseWriter, r *http.Request) {
	var input PostItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = httpx.ActorID(r)
	result, err := h.service.PostIntakeItem(r.Context(), input)
	if err != nil {
		h.fail(w, "post intake item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
