package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidProjectID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"lowercase object id", "64b7f0c2a1d3e4f5a6b7c8d9", true},
		{"uppercase object id", "64B7F0C2A1D3E4F5A6B7C8D9", true},
		{"empty", "", false},
		{"too short", "64b7f0c2a1d3e4f5a6b7c8d", false},
		{"too long", "64b7f0c2a1d3e4f5a6b7c8d9a", false},
		{"non hex", "64b7f0c2a1d3e4f5a6b7c8zz", false},
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"injection", "64b7f0c2a1d3e4f5a6b7c8d9'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidProjectID(tt.id))
		})
	}
}

func TestNewProjectID_IsValidAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewProjectID()
		require.True(t, IsValidProjectID(id), "generated id %q should be valid", id)
		require.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestParseInboundMessage(t *testing.T) {
	t.Run("keeps raw payload with unknown fields", func(t *testing.T) {
		raw := []byte(`{"message":"hello team","sender":{"email":"a@b.c"}}`)
		msg, err := ParseInboundMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, "hello team", msg.Message)
		assert.Equal(t, raw, msg.Raw)
	})

	t.Run("rejects non object", func(t *testing.T) {
		_, err := ParseInboundMessage([]byte(`"just a string"`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("rejects non string message", func(t *testing.T) {
		_, err := ParseInboundMessage([]byte(`{"message":42}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("accepts blank message", func(t *testing.T) {
		raw := []byte(`{"message":"   "}`)
		msg, err := ParseInboundMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, "   ", msg.Message)
		assert.Equal(t, raw, msg.Raw)
	})

	t.Run("rejects missing message field", func(t *testing.T) {
		_, err := ParseInboundMessage([]byte(`{"text":"hi"}`))
		assert.ErrorIs(t, err, ErrMissingMessage)

		_, err = ParseInboundMessage([]byte(`{"message":null}`))
		assert.ErrorIs(t, err, ErrMissingMessage)
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		big := `{"message":"` + strings.Repeat("x", MaxMessageBytes) + `"}`
		_, err := ParseInboundMessage([]byte(big))
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	})
}

func TestNormalizeProjectID(t *testing.T) {
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", NormalizeProjectID("64B7F0C2A1B2C3D4E5F60718"))
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", NormalizeProjectID("64b7f0c2a1b2c3d4e5f60718"))
}

func TestAssistantMessage_WireShape(t *testing.T) {
	data, err := json.Marshal(NewAssistantMessage("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","sender":{"id":"ai","label":"AI"}}`, string(data))
}

func TestProject_Validate(t *testing.T) {
	p := &Project{ID: NewProjectID(), Name: "workspace"}
	assert.NoError(t, p.Validate())

	p.Name = ""
	assert.ErrorIs(t, p.Validate(), ErrInvalidProjectName)

	p = &Project{ID: "nope", Name: "workspace"}
	assert.ErrorIs(t, p.Validate(), ErrInvalidProjectID)
}

func TestProject_HasMember(t *testing.T) {
	p := &Project{Members: []string{"u1", "u2"}}
	assert.True(t, p.HasMember("u2"))
	assert.False(t, p.HasMember("u3"))
}
