package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
)

// QueryService executes hybrid queries.
type QueryService interface {
	Query(ctx context.Context, req search.Request) (*search.Result, error)
}

// QueryHandler handles semantic query requests.
type QueryHandler struct {
	service QueryService
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

// Query handles POST /api/v1/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := h.service.Query(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, result)
}
