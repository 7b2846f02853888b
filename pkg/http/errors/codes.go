package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Selection errors
	ErrCodeInsufficientQuestions = "insufficient_questions"
	ErrCodeEmptySelection        = "empty_selection"

	// Session / submission errors
	ErrCodeTestNotFound      = "test_not_found"
	ErrCodeInvalidTestID     = "invalid_test_id"
	ErrCodeAlreadyLocked     = "already_locked"
	ErrCodeStaleSubmission   = "stale_submission"
	ErrCodeSessionNotStarted = "session_not_started"
	ErrCodeSessionExpired    = "session_expired"
	ErrCodeSyncFailed        = "sync_failed"
	ErrCodeSubmitFailed      = "submit_failed"
	ErrCodeResultNotReady    = "result_not_ready"

	// Challenge errors
	ErrCodeChallengeNotFound       = "challenge_not_found"
	ErrCodeChallengeCreationFailed = "challenge_creation_failed"
	ErrCodeChallengeNotAccepted    = "challenge_not_accepted"
	ErrCodeChallengeExpired        = "challenge_expired"
	ErrCodeNotAParticipant         = "not_a_participant"
	ErrCodeTransferFailed          = "coin_transfer_failed"
	ErrCodeInsufficientCoins       = "insufficient_coins"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
