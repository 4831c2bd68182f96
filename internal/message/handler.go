package message

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/murmurapp/murmur/internal/auth"
	"github.com/murmurapp/murmur/internal/httputil"
	"github.com/murmurapp/murmur/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Handler contains HTTP handlers for message endpoints
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

// SendRequest represents the anonymous send request body
type SendRequest struct {
	Content string `json:"content"`
}

// ListResponse is the authenticated inbox response
type ListResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
}

// AcceptingResponse reports the owner's accept-messages flag
type AcceptingResponse struct {
	Success           bool `json:"success"`
	AcceptingMessages bool `json:"accepting_messages"`
}

// SetAcceptingRequest flips the accept-messages flag
type SetAcceptingRequest struct {
	AcceptingMessages bool `json:"accepting_messages"`
}

// Send handles anonymous message submission
// @Summary      Send an anonymous message
// @Description  Append a message to the target user's inbox. No authentication; sender identity is never recorded.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        username path string true "Target username"
// @Param        request body SendRequest true "Message content"
// @Success      201 {object} httputil.Envelope
// @Failure      400 {object} httputil.Envelope "Content length out of bounds"
// @Failure      403 {object} httputil.Envelope "User is not accepting messages"
// @Failure      404 {object} httputil.Envelope "Unknown user"
// @Router       /u/{username}/messages [post]
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	username := chi.URLParam(r, "username")
	if decoded, err := url.PathUnescape(username); err == nil {
		username = decoded
	}
	username = strings.TrimSpace(username)

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.Send(r.Context(), username, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrContentLength):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidContent, http.StatusBadRequest)
		case errors.Is(err, ErrUserNotFound):
			logger.Warn("send failed: user not found", "username", username)
			httputil.RespondErrorWithCode(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotAccepting):
			logger.Warn("send failed: user not accepting messages", "username", username)
			httputil.RespondErrorWithCode(w, "User is not accepting messages", httputil.CodeMessagesDisabled, http.StatusForbidden)
		default:
			logger.Error("send failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "Error sending message", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondMessage(w, "Message sent successfully", http.StatusCreated)
}

// List handles inbox retrieval
// @Summary      List received messages
// @Description  Return the authenticated owner's messages newest first.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query int false "Page size (max 100)"
// @Param        offset query int false "Page offset"
// @Success      200 {object} ListResponse
// @Failure      401 {object} httputil.Envelope "Not authenticated"
// @Failure      404 {object} httputil.Envelope "Account no longer exists"
// @Router       /messages [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "Not Authenticated", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logger.Warn("list failed: user vanished", "user_id", userID)
			httputil.RespondErrorWithCode(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("list failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "An unexpected error occurred", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []Message{}
	}
	httputil.RespondJSON(w, ListResponse{Success: true, Messages: messages}, http.StatusOK)
}

// Delete handles removal of one of the owner's messages
// @Summary      Delete a message
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Message ID"
// @Success      200 {object} httputil.Envelope
// @Failure      404 {object} httputil.Envelope "Message not found"
// @Router       /messages/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "Not Authenticated", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid message id", httputil.CodeMessageNotFound, http.StatusNotFound)
		return
	}

	if err := h.service.Delete(r.Context(), userID, messageID); err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			httputil.RespondErrorWithCode(w, "Message not found", httputil.CodeMessageNotFound, http.StatusNotFound)
			return
		}
		logger.Error("delete failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Error deleting message", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondMessage(w, "Message deleted", http.StatusOK)
}

// GetAccepting reports the owner's accept-messages flag
// @Summary      Get accept-messages flag
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} AcceptingResponse
// @Router       /accept-messages [get]
func (h *Handler) GetAccepting(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "Not Authenticated", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	accepting, err := h.service.Accepting(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.RespondErrorWithCode(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to read accept flag", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Error reading accept flag", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, AcceptingResponse{Success: true, AcceptingMessages: accepting}, http.StatusOK)
}

// SetAccepting flips the owner's accept-messages flag
// @Summary      Set accept-messages flag
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SetAcceptingRequest true "New flag value"
// @Success      200 {object} httputil.Envelope
// @Router       /accept-messages [post]
func (h *Handler) SetAccepting(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "Not Authenticated", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req SetAcceptingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid accept-messages request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.SetAccepting(r.Context(), userID, req.AcceptingMessages); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.RespondErrorWithCode(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to update accept flag", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Error updating accept flag", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("accept flag updated", "user_id", userID, "accepting", req.AcceptingMessages)
	httputil.RespondMessage(w, "Message acceptance status updated", http.StatusOK)
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
