package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrSessionExists indicates that a session with the same id is already registered
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotInitialized indicates a message arrived for a session whose
	// agent handles were never built
	ErrSessionNotInitialized = errors.New("session not initialized")

	// ErrConversationClosed indicates the group conversation no longer accepts messages
	ErrConversationClosed = errors.New("conversation closed")

	// ErrInputTimeout indicates the UI never returned a human response
	ErrInputTimeout = errors.New("human input timed out")

	// ErrInvalidConfig indicates that configuration validation failed
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrModelNotAllowed indicates the configured model is outside the allow-list
	ErrModelNotAllowed = errors.New("model not allowed")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
