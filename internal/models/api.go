// Package models defines API response envelope types shared by the HTTP layer.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request succeeded.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRetry indicates a retryable failure the client should resubmit.
	APIStatusRetry APIStatus = "retry"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}

// Retry creates a retryable-error API response with a message. Callers are
// expected to show a generic "try again" rather than a fabricated reply.
func Retry(message string) APIResponse {
	return APIResponse{Status: APIStatusRetry, Message: message}
}
