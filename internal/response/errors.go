package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrExamineeAccessOnly ErrCode = "EXAMINEE_ACCESS_ONLY"
	ErrAdminAccessOnly    ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrSessionNotReady      ErrCode = "SESSION_NOT_READY"
	ErrExamAlreadyStarted   ErrCode = "EXAM_ALREADY_STARTED"
	ErrExamNotRunning       ErrCode = "EXAM_NOT_RUNNING"
	ErrExamAlreadySubmitted ErrCode = "EXAM_ALREADY_SUBMITTED"
	ErrUnknownTask          ErrCode = "UNKNOWN_TASK"
	ErrEmptyCode            ErrCode = "EMPTY_CODE"
	ErrExecutionInFlight    ErrCode = "EXECUTION_IN_FLIGHT"
	ErrFullscreenRequired   ErrCode = "FULLSCREEN_REQUIRED"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"
	ErrGatewayUnavailable   ErrCode = "GATEWAY_UNAVAILABLE"
	ErrSessionClosed        ErrCode = "SESSION_CLOSED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrExamineeAccessOnly:
		return "This resource is restricted to examinees."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrSessionNotReady:
		return "The execution session is not ready yet."
	case ErrExamAlreadyStarted:
		return "The exam has already started."
	case ErrExamNotRunning:
		return "The exam is not running."
	case ErrExamAlreadySubmitted:
		return "The exam has already been submitted."
	case ErrUnknownTask:
		return "Unknown task."
	case ErrEmptyCode:
		return "Write some code before running it."
	case ErrExecutionInFlight:
		return "Another run is still in progress."
	case ErrFullscreenRequired:
		return "Fullscreen is required to start the exam. Please enable it in your browser and try again."
	case ErrConfirmationRequired:
		return "Please confirm the submission first."
	case ErrGatewayUnavailable:
		return "Failed to connect to the execution server."
	case ErrSessionClosed:
		return "The exam session has been closed."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
