package types

import (
	"time"
)

// Synthetic sender attached to every assistant reply
// ARCHITECTURAL DISCOVERY: Fixed id/label lets clients render assistant
// bubbles without a lookup against the identity service
const (
	AssistantSenderID    = "ai"
	AssistantSenderLabel = "AI"
)

// System notice events sent to a single connection
const (
	EventInvalidMessage = "invalid_message"
	EventRateLimited    = "rate_limited"
)

// Identity is the verified result of credential validation.
// It is produced by the identity verifier and never mutated afterwards.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Project is the directory record a room is keyed on
// FUNCTIONAL DISCOVERY: Members is membership metadata only; admission
// consults it only when membership enforcement is switched on
type Project struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Members   []string  `json:"members" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HasMember reports whether userID is listed on the project.
func (p *Project) HasMember(userID string) bool {
	for _, member := range p.Members {
		if member == userID {
			return true
		}
	}
	return false
}

// InboundMessage is the client payload for one dispatch cycle
// TECHNICAL DISCOVERY: Raw keeps the exact bytes so relays echo the
// payload shape unchanged, including fields the server does not know about
type InboundMessage struct {
	Message string `json:"message"`
	Raw     []byte `json:"-"`
}

// Sender describes who an outbound message is attributed to.
type Sender struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OutboundMessage is what the assistant broadcasts to a room.
type OutboundMessage struct {
	Message string `json:"message"`
	Sender  Sender `json:"sender"`
}

// AssistantSender returns the synthetic assistant descriptor.
func AssistantSender() Sender {
	return Sender{ID: AssistantSenderID, Label: AssistantSenderLabel}
}

// NewAssistantMessage wraps generated text for a room broadcast.
func NewAssistantMessage(text string) *OutboundMessage {
	return &OutboundMessage{
		Message: text,
		Sender:  AssistantSender(),
	}
}

// SystemNotice is delivered only to the connection it concerns
type SystemNotice struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

// NewSystemNotice builds a notice for the given event.
func NewSystemNotice(event, message string) *SystemNotice {
	return &SystemNotice{Type: "system", Event: event, Message: message}
}

// AugmentationRequest carries one extracted prompt to the assistant.
type AugmentationRequest struct {
	Prompt string
	RoomID string
}

// MemberInfo is a presence descriptor for a joined connection
type MemberInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	JoinedAt     time.Time `json:"joined_at"`
}
