package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/murmurapp/murmur/internal/httputil"
	"github.com/murmurapp/murmur/internal/logging"
	"github.com/murmurapp/murmur/internal/ratelimit"
)

// Handler contains HTTP handlers for account lifecycle and session endpoints
type Handler struct {
	service         *Service
	rateLimiter     *ratelimit.Limiter
	logger          *logging.Logger
	isProduction    bool
	accessDuration  time.Duration
	refreshDuration time.Duration
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, logger *logging.Logger, isProduction bool, accessDuration, refreshDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		logger:          logger,
		isProduction:    isProduction,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}
}

// SignUpRequest represents the registration request body
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyCodeRequest represents the code verification request body
type VerifyCodeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// SkipVerificationRequest represents the dev-only verification bypass body
type SkipVerificationRequest struct {
	Username string `json:"username"`
}

// SignInRequest represents the sign-in request body.
// Identifier is a username or an email address.
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CheckUsernameResponse reports username availability for the sign-up form
type CheckUsernameResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Available bool   `json:"available"`
}

// SignUp handles user registration
// @Summary      Register a new user
// @Description  Create an unverified account and email a 6-digit verification code.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignUpRequest true "Registration credentials"
// @Success      201 {object} httputil.Envelope
// @Failure      400 {object} httputil.Envelope "Validation error or username/email taken"
// @Failure      500 {object} httputil.Envelope "Email delivery or internal error"
// @Router       /auth/sign-up [post]
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Rate limit by IP
	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "sign-up")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for sign-up", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid sign-up request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"username": req.Username})

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "sign-up"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	err = h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameInvalid):
			respondError(w, err.Error(), httputil.CodeInvalidUsername, http.StatusBadRequest)
		case errors.Is(err, ErrEmailInvalid):
			respondError(w, err.Error(), httputil.CodeInvalidEmail, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			respondError(w, err.Error(), httputil.CodeInvalidPassword, http.StatusBadRequest)
		case errors.Is(err, ErrUsernameTaken):
			logger.Warn("sign-up failed: username taken")
			respondError(w, "Username is already taken", httputil.CodeUsernameTaken, http.StatusBadRequest)
		case errors.Is(err, ErrEmailTaken):
			logger.Warn("sign-up failed: email taken")
			respondError(w, "User already exists with this email", httputil.CodeEmailTaken, http.StatusBadRequest)
		case errors.Is(err, ErrEmailDelivery):
			logger.Error("sign-up failed: verification email not delivered")
			respondError(w, "failed to send verification email", httputil.CodeEmailDelivery, http.StatusInternalServerError)
		default:
			logger.Error("sign-up failed: internal error", "error", err.Error())
			respondError(w, "Error registering user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered")
	respondMessage(w, "User registered successfully. Please verify your email.", http.StatusCreated)
}

// VerifyCode handles email code verification
// @Summary      Verify account
// @Description  Verify a username with the 6-digit code sent by email.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyCodeRequest true "Username and code"
// @Success      200 {object} httputil.Envelope
// @Failure      400 {object} httputil.Envelope "Code mismatch or expired"
// @Failure      404 {object} httputil.Envelope "Unknown user"
// @Router       /auth/verify-code [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid verify-code request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	username := decodeUsername(req.Username)
	logger = logger.WithFields(map[string]any{"username": username})

	err := h.service.VerifyCode(r.Context(), username, strings.TrimSpace(req.Code))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			logger.Warn("verification failed: user not found")
			respondError(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrCodeExpired):
			logger.Warn("verification failed: code expired")
			respondError(w, "Verification code has expired. Please sign up again to get a new code.", httputil.CodeCodeExpired, http.StatusBadRequest)
		case errors.Is(err, ErrCodeMismatch):
			logger.Warn("verification failed: code mismatch")
			respondError(w, "Incorrect verification code", httputil.CodeCodeMismatch, http.StatusBadRequest)
		default:
			logger.Error("verification failed: internal error", "error", err.Error())
			respondError(w, "Error verifying user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("account verified")
	respondMessage(w, "Account verified successfully", http.StatusOK)
}

// SkipVerification marks an account verified without a code.
// Mounted only in the dev environment.
// @Summary      Skip verification (dev only)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SkipVerificationRequest true "Username"
// @Success      200 {object} httputil.Envelope
// @Failure      404 {object} httputil.Envelope "Unknown user"
// @Router       /auth/skip-verification [post]
func (h *Handler) SkipVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SkipVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid skip-verification request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	username := decodeUsername(req.Username)

	err := h.service.SkipVerification(r.Context(), username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			respondError(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("skip-verification failed", "error", err.Error())
		respondError(w, "Error skipping verification", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("verification skipped", "username", username)
	respondMessage(w, "Account verification skipped", http.StatusOK)
}

// CheckUsername reports whether a username is valid and not taken
// @Summary      Check username availability
// @Tags         auth
// @Produce      json
// @Param        username query string true "Username to check"
// @Success      200 {object} CheckUsernameResponse
// @Failure      400 {object} httputil.Envelope "Invalid username"
// @Router       /check-username [get]
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	username := strings.TrimSpace(r.URL.Query().Get("username"))

	available, err := h.service.UsernameAvailable(r.Context(), username)
	if err != nil {
		if errors.Is(err, ErrUsernameInvalid) {
			respondError(w, err.Error(), httputil.CodeInvalidUsername, http.StatusBadRequest)
			return
		}
		logger.Error("failed to check username", "error", err.Error())
		respondError(w, "Error checking username", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	message := "Username is available"
	if !available {
		message = "Username is already taken"
	}
	respondJSON(w, CheckUsernameResponse{Success: true, Message: message, Available: available}, http.StatusOK)
}

// SignIn handles user sign-in
// @Summary      Sign in
// @Description  Authenticate by username or email and receive access and refresh tokens.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignInRequest true "Credentials"
// @Success      200 {object} AuthTokens
// @Failure      401 {object} httputil.Envelope "Invalid credentials"
// @Failure      403 {object} httputil.Envelope "Account not verified"
// @Router       /auth/sign-in [post]
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "sign-in")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for sign-in", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid sign-in request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "sign-in"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	tokens, err := h.service.SignIn(r.Context(), req.Identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			logger.Warn("sign-in failed: invalid credentials")
			respondError(w, "invalid username/email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		case errors.Is(err, ErrNotVerified):
			logger.Warn("sign-in failed: account not verified")
			respondError(w, "account not verified, please check your inbox", httputil.CodeNotVerified, http.StatusForbidden)
		default:
			logger.Error("sign-in failed: internal error", "error", err.Error())
			respondError(w, "failed to sign in", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user signed in")

	// Set cookies if request is from browser
	if ShouldUseCookies(r) {
		SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		// Don't return tokens in response body when using cookies
		respondMessage(w, "signed in successfully", http.StatusOK)
	} else {
		respondJSON(w, tokens, http.StatusOK)
	}
}

// Refresh handles access token refresh
// @Summary      Refresh access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Refresh token (or cookie)"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} httputil.Envelope "Refresh token missing"
// @Failure      401 {object} httputil.Envelope "Invalid or expired refresh token"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Try to get refresh token from JSON body first
	var refreshToken string
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		refreshToken = req.RefreshToken
	}

	// Fallback to cookie if body empty/invalid
	if refreshToken == "" {
		cookieToken, err := GetRefreshTokenFromCookie(r)
		if err == nil {
			refreshToken = cookieToken
		}
	}

	if refreshToken == "" {
		logger.Warn("refresh token missing from both body and cookie")
		respondError(w, "refresh token required", httputil.CodeRefreshRequired, http.StatusBadRequest)
		return
	}

	refreshToken = strings.TrimSpace(refreshToken)

	tokens, err := h.service.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenExpired) {
			logger.Warn("token refresh failed: invalid or expired token", "error", err.Error())
			respondError(w, "invalid or expired refresh token", httputil.CodeInvalidRefresh, http.StatusUnauthorized)
			return
		}
		logger.Error("token refresh failed: internal error", "error", err.Error())
		respondError(w, "failed to refresh token", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("access token refreshed")

	if ShouldUseCookies(r) {
		SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		respondMessage(w, "token refreshed successfully", http.StatusOK)
	} else {
		respondJSON(w, tokens, http.StatusOK)
	}
}

// Logout handles user logout
// @Summary      Log out
// @Description  Revoke the refresh token and clear auth cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Optional refresh token"
// @Success      200 {object} httputil.Envelope
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Get refresh token from either source
	var refreshToken string
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		refreshToken = req.RefreshToken
	}
	if refreshToken == "" {
		cookieToken, _ := GetRefreshTokenFromCookie(r)
		refreshToken = cookieToken
	}

	// Revoke refresh token if provided
	if refreshToken != "" {
		if err := h.service.RevokeRefreshToken(r.Context(), refreshToken); err != nil {
			logger.Warn("failed to revoke refresh token", "error", err)
			// Continue - still clear cookies
		}
	}

	ClearAuthCookies(w)

	logger.Info("user logged out")
	respondMessage(w, "logged out", http.StatusOK)
}

// decodeUsername undoes URL-encoding clients apply when the username came
// from a path segment. Falls back to the raw value on malformed escapes.
func decodeUsername(username string) string {
	decoded, err := url.QueryUnescape(username)
	if err != nil {
		return strings.TrimSpace(username)
	}
	return strings.TrimSpace(decoded)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondMessage sends a success envelope
func respondMessage(w http.ResponseWriter, message string, statusCode int) {
	httputil.RespondMessage(w, message, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (behind proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	// RemoteAddr format is "IP:port", extract just the IP
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
