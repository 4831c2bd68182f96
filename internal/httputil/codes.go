package httputil

// Machine-readable error codes returned alongside error messages so clients
// can branch without string-matching messages.
const (
	CodeInvalidRequestBody = "invalid_request_body"
	CodeInternalError      = "internal_error"
	CodeTooManyRequests    = "too_many_requests"

	CodeInvalidUsername = "invalid_username"
	CodeInvalidEmail    = "invalid_email"
	CodeInvalidPassword = "invalid_password"
	CodeUsernameTaken   = "username_taken"
	CodeEmailTaken      = "email_taken"
	CodeEmailDelivery   = "email_delivery_failed"

	CodeUserNotFound = "user_not_found"
	CodeCodeMismatch = "code_mismatch"
	CodeCodeExpired  = "code_expired"

	CodeInvalidCredentials = "invalid_credentials"
	CodeNotVerified        = "not_verified"
	CodeMissingAuth        = "missing_auth"
	CodeInvalidAuthHeader  = "invalid_auth_header"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeRefreshRequired    = "refresh_token_required"
	CodeInvalidRefresh     = "invalid_refresh_token"

	CodeMessagesDisabled = "messages_disabled"
	CodeInvalidContent   = "invalid_content"
	CodeMessageNotFound  = "message_not_found"
)
