package errors

import "net/http"

// Error codes for the conversation/quiz core. The API layer maps these to
// status codes; the core itself never touches HTTP.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeAnchorNotFound = "ANCHOR_NOT_FOUND"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeProviderError  = "PROVIDER_ERROR"
	CodeTurnInProgress = "TURN_IN_PROGRESS"
	CodeConfiguration  = "CONFIGURATION_ERROR"
)

// NewDomainNotFoundError reports an absent entity, message or user.
func NewDomainNotFoundError(message string) *AppError {
	return NewNotFoundError(CodeNotFound, message)
}

// NewAnchorNotFoundError reports an anchor id that is absent or does not
// belong to an assistant message.
func NewAnchorNotFoundError(message string) *AppError {
	return NewNotFoundError(CodeAnchorNotFound, message)
}

// NewInvalidInputError rejects input before any store mutation or model
// call happens.
func NewInvalidInputError(message string) *AppError {
	return NewBadRequestError(CodeInvalidInput, message)
}

// NewProviderError reports a failed or malformed model-provider call.
func NewProviderError(message string) *AppError {
	return NewError(http.StatusBadGateway, CodeProviderError, message)
}

// NewTurnInProgressError rejects a second in-flight turn on the same
// conversation entity. Callers may retry once the current turn finishes.
func NewTurnInProgressError(entityID string) *AppError {
	return NewConflictError(CodeTurnInProgress, "a turn is already in progress for this conversation").
		WithDetails(map[string]string{"entity_id": entityID})
}

// NewConfigurationError reports a missing credential or misconfigured
// collaborator, fatal until reconfigured.
func NewConfigurationError(message string) *AppError {
	return NewInternalServerError(CodeConfiguration, message)
}
