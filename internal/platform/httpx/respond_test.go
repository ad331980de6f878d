package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/laadstock/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.ValidationError("bad"), http.StatusBadRequest},
		{"not found", shared.NotFoundError("lot", 1), http.StatusNotFound},
		{"conflict", fmt.Errorf("x: %w", shared.ErrConflict), http.StatusConflict},
		{"duplicate", shared.ErrIdempotencyConflict, http.StatusConflict},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRespondErrorInsufficientStockCarriesQuantities(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("sale: %w", &shared.InsufficientStockError{LotID: 4, Available: 20, Requested: 30}))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body StockProblem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(4), body.LotID)
	require.Equal(t, 20, body.Available)
	require.Equal(t, 30, body.Requested)
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		LotID int64 `json:"lot_id" validate:"required,gt=0"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lot_id":0}`))
	var p payload
	require.ErrorIs(t, DecodeJSON(req, &p), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lot_id":3}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.Equal(t, int64(3), p.LotID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`))
	require.ErrorIs(t, DecodeJSON(req, &p), shared.ErrValidation)
}
