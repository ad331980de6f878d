// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/laadstock/internal/shared"
)

// StockProblem extends ProblemDetail with the quantities of a failed decrement.
type StockProblem struct {
	ProblemDetail
	LotID     int64 `json:"lot_id"`
	Available int   `json:"available"`
	Requested int   `json:"requested"`
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, StockProblem{
			ProblemDetail: ProblemDetail{Title: "Insufficient Stock", Status: http.StatusConflict, Detail: stockErr.Error()},
			LotID:         stockErr.LotID,
			Available:     stockErr.Available,
			Requested:     stockErr.Requested,
		})
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
