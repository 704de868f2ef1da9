package domain

import "errors"

var (
	// ErrTradeNotFound is returned when a trade id does not exist.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrAlreadyClosed is returned when closing a trade that is not OPEN.
	// OPEN -> CLOSED is terminal, the second close is a rejected no-op.
	ErrAlreadyClosed = errors.New("trade already closed")
)
