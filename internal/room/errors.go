package room

import "errors"

// Registry-related errors
var (
	ErrNilMember     = errors.New("member cannot be nil")
	ErrEmptyRoomID   = errors.New("room id cannot be empty")
	ErrAlreadyInRoom = errors.New("member is already joined to a different room")
)
