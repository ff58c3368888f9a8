package interfaces

import "huddle/pkg/types"

// Connection is an admitted client channel as seen by the dispatcher
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// dispatch logic testable with in-memory fakes
type Connection interface {
	// ID returns the unique connection id
	ID() string

	// Send queues an already-encoded payload for delivery (thread-safe)
	Send(payload []byte) error

	// WriteJSON encodes v and queues it for delivery (thread-safe)
	WriteJSON(v interface{}) error

	// Identity returns the identity attached at admission
	Identity() types.Identity

	// RoomID returns the room bound at admission
	RoomID() string

	// Activate moves an admitted connection to the active state and
	// reports whether this call performed the transition
	Activate() bool

	// IsActive reports whether inbound messages may be processed
	IsActive() bool

	// MarkClosed moves the connection to its terminal state and reports
	// whether this call performed the transition
	MarkClosed() bool
}
