package types

import "errors"

var (
	// ErrUnknownMessageType is returned when a message carries a type name
	// outside the closed protocol set.
	ErrUnknownMessageType = errors.New("unknown message type")
)
