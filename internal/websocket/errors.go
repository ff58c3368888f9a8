package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send buffer full, peer is not reading")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

