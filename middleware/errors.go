package middleware

import "errors"

var (
	// ErrInvalidMessage indicates a send carried no message
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidContext indicates the send is missing its sender or recipient
	ErrInvalidContext = errors.New("invalid middleware context")
)
