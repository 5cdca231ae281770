package handlers

import (
	"errors"
	"net/http"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
)

// InfoService reports index health and statistics.
type InfoService interface {
	State() index.State
	Stats() (*index.Stats, error)
}

// InfoHandler handles index status requests.
type InfoHandler struct {
	service InfoService
}

// NewInfoHandler creates a new info handler.
func NewInfoHandler(service InfoService) *InfoHandler {
	return &InfoHandler{service: service}
}

// infoPayload is the GET /api/v1/info response body.
type infoPayload struct {
	State string       `json:"state"`
	Stats *index.Stats `json:"stats,omitempty"`
}

// GetInfo handles GET /api/v1/info. An uninitialized index is a valid
// answer, not an error: the state is reported with no statistics.
func (h *InfoHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	payload := infoPayload{State: h.service.State().String()}

	stats, err := h.service.Stats()
	if err != nil && !errors.Is(err, index.ErrNotReady) {
		response.InternalError(w, err)
		return
	}
	payload.Stats = stats

	response.Success(w, payload)
}
