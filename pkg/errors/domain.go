package errors

import "net/http"

// Domain-specific errors for the token-metered payment core.
//
// Every kind named in the error taxonomy maps to exactly one sentinel here;
// use Wrap or WithDetails to attach request-specific context before
// returning it up the call stack.

// Validation / lookup errors
var (
	ErrValidation = &Error{
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnknownReference = &Error{
		Code:       "UNKNOWN_REFERENCE",
		Message:    "transaction reference not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrUnknownUser = &Error{
		Code:       "UNKNOWN_USER",
		Message:    "user not found",
		HTTPStatus: http.StatusNotFound,
	}
)

// InsufficientTokens is returned by ConsumptionGuard when a debit cannot be
// satisfied. Callers should attach "required_tokens" and "current_balance"
// via WithDetails before rendering the response.
var ErrInsufficientTokens = &Error{
	Code:       "InsufficientTokens",
	Message:    "insufficient token balance",
	HTTPStatus: http.StatusPaymentRequired,
}

// Gateway errors
var (
	// ErrGatewayUnavailable covers network errors, 5xx responses, and
	// token-acquisition failures. The transaction stays pending; retryable.
	ErrGatewayUnavailable = &Error{
		Code:       "GatewayUnavailable",
		Message:    "payment gateway unavailable",
		HTTPStatus: http.StatusBadGateway,
	}

	// ErrGatewayRejected means the gateway returned a non-success response
	// code. Terminal; the transaction moves to failed. Per spec this is
	// rendered as HTTP 200 with a failure status body, not as an HTTP
	// error — handlers must special-case it rather than mapping through
	// GetHTTPStatus.
	ErrGatewayRejected = &Error{
		Code:       "GatewayRejected",
		Message:    "payment gateway rejected the transaction",
		HTTPStatus: http.StatusOK,
	}
)

// ErrConflictingState is returned when a conditional status update fails
// because the row is already in a terminal state other than the target.
// Under correct orchestrator logic this should be unreachable; treat any
// occurrence as a defect and log it.
var ErrConflictingState = &Error{
	Code:       "CONFLICTING_STATE",
	Message:    "transaction is in an unexpected state",
	HTTPStatus: http.StatusInternalServerError,
}

// ErrStorageError covers any store-level fault. No partial state should be
// observable by the caller when this is returned.
var ErrStorageError = &Error{
	Code:       "STORAGE_ERROR",
	Message:    "storage operation failed",
	HTTPStatus: http.StatusInternalServerError,
}
