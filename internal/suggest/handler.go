package suggest

import (
	"net/http"

	"github.com/murmurapp/murmur/internal/httputil"
	"github.com/murmurapp/murmur/internal/logging"
)

// Handler contains the HTTP handler for message suggestions
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// SuggestResponse carries the prompt suggestions. Fallback is true when the
// provider was unavailable and the static list was substituted.
type SuggestResponse struct {
	Success  bool     `json:"success"`
	Messages []string `json:"messages"`
	Fallback bool     `json:"fallback"`
	Message  string   `json:"message,omitempty"`
}

// Suggest handles prompt suggestion requests
// @Summary      Suggest message prompts
// @Description  Return three AI-generated conversation starters, or the static fallback list when the provider is unavailable.
// @Tags         suggestions
// @Produce      json
// @Success      200 {object} SuggestResponse
// @Router       /suggest-messages [post]
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	prompts, usedFallback := h.service.Suggest(r.Context())

	resp := SuggestResponse{
		Success:  true,
		Messages: prompts,
		Fallback: usedFallback,
	}
	if usedFallback {
		resp.Message = "Suggestion service unavailable, returning fallback prompts"
	}

	httputil.RespondJSON(w, resp, http.StatusOK)
}
