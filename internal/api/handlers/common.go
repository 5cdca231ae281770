// Package handlers implements the REST API endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/embedding"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
)

// writeServiceError maps engine errors to HTTP status codes. Input errors
// are the client's fault; index and backend availability problems are
// reported as service unavailable so clients can retry after a reindex.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrEmptyPrompt),
		errors.Is(err, search.ErrInvalidPage),
		errors.Is(err, search.ErrInvalidSort):
		response.BadRequest(w, err)
	case errors.Is(err, index.ErrNotReady),
		errors.Is(err, index.ErrStale),
		errors.Is(err, embedding.ErrModelUnavailable):
		response.ServiceUnavailable(w, err)
	default:
		response.InternalError(w, err)
	}
}
