package types

import (
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	projectIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// MaxMessageBytes bounds a single inbound chat payload.
const MaxMessageBytes = 65536

// IsValidProjectID checks the 24-hex object id format used by the project service
func IsValidProjectID(projectID string) bool {
	return projectIDRegex.MatchString(projectID)
}

// NormalizeProjectID returns the canonical lowercase form of an object id.
// Hex case carries no meaning, so every store, cache key and room key uses
// this form.
func NormalizeProjectID(projectID string) string {
	return strings.ToLower(projectID)
}

// NewProjectID generates an object id: 4 bytes of big-endian unix seconds
// followed by 8 random bytes taken from a UUIDv4.
func NewProjectID() string {
	var id [12]byte
	secs := uint32(time.Now().Unix())
	id[0] = byte(secs >> 24)
	id[1] = byte(secs >> 16)
	id[2] = byte(secs >> 8)
	id[3] = byte(secs)
	random := uuid.New()
	copy(id[4:], random[8:])
	return hex.EncodeToString(id[:])
}

// ParseInboundMessage decodes a client payload
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func ParseInboundMessage(data []byte) (*InboundMessage, error) {
	if len(data) > MaxMessageBytes {
		return nil, ErrMessageTooLarge
	}

	// blank text is still a message and is relayed; only a missing field
	// is rejected
	var wire struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ErrInvalidPayload
	}
	if wire.Message == nil {
		return nil, ErrMissingMessage
	}

	return &InboundMessage{Message: *wire.Message, Raw: data}, nil
}

// Validate ensures the project record is usable as a room key.
func (p *Project) Validate() error {
	if !IsValidProjectID(p.ID) {
		return ErrInvalidProjectID
	}
	if len(p.Name) < 1 || len(p.Name) > 200 {
		return ErrInvalidProjectName
	}
	return nil
}
