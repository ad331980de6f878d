package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/laadstock/internal/shared"
)

// ActorHeader carries the operator id recorded in audit logs.
const ActorHeader = "X-Actor-ID"

// PathID parses a positive int64 URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationError("invalid %s", name)
	}
	return id, nil
}

// ActorID reads the optional actor header. Missing or malformed values yield 0.
func ActorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
