// Package dispatch runs the per-message cycle for admitted connections:
// relay to the room, then optionally hand the message to the assistant.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"huddle/internal/metrics"
	"huddle/internal/room"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// DefaultTrigger is the mention that routes a message to the assistant.
const DefaultTrigger = "@ai"

// Augmenter produces the assistant reply for a prompt. It never fails;
// degraded replies are still text.
type Augmenter interface {
	Augment(ctx context.Context, prompt string) string
}

// Rooms is the subset of the room registry the dispatcher drives.
type Rooms interface {
	Join(roomID string, m room.Member) error
	Leave(m room.Member)
	Broadcast(roomID string, payload []byte, exclude ...string) int
}

// Config tunes trigger detection and assistant rate limiting.
type Config struct {
	Trigger    string
	RateLimit  int // assistant requests per user per window; 0 disables
	RateWindow time.Duration
}

// Dispatcher relays chat messages and schedules assistant replies
// ARCHITECTURAL DISCOVERY: Relay is synchronous on the sender's read loop,
// augmentation is detached so a slow backend never delays chat delivery
type Dispatcher struct {
	ctx       context.Context // lifetime of the process, not of any connection
	rooms     Rooms
	augmenter Augmenter
	limiter   *RateLimiter
	trigger   string
	logger    zerolog.Logger

	inflight sync.WaitGroup
}

// New creates a dispatcher whose augmentations run under ctx. Cancelling
// ctx stops new augmentations and the limiter janitor.
func New(ctx context.Context, rooms Rooms, augmenter Augmenter, cfg Config, logger zerolog.Logger) *Dispatcher {
	trigger := cfg.Trigger
	if trigger == "" {
		trigger = DefaultTrigger
	}

	d := &Dispatcher{
		ctx:       ctx,
		rooms:     rooms,
		augmenter: augmenter,
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		trigger:   trigger,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
	go d.janitor()
	return d
}

func (d *Dispatcher) janitor() {
	ticker := time.NewTicker(5 * d.limiter.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.limiter.Cleanup()
		case <-d.ctx.Done():
			return
		}
	}
}

// Connect joins an admitted connection to its room and activates it.
func (d *Dispatcher) Connect(conn interfaces.Connection) error {
	if conn.IsActive() {
		return ErrNotAdmitted
	}
	if err := d.rooms.Join(conn.RoomID(), conn); err != nil {
		return fmt.Errorf("join room %s: %w", conn.RoomID(), err)
	}
	if !conn.Activate() {
		d.rooms.Leave(conn)
		return ErrNotAdmitted
	}

	identity := conn.Identity()
	d.logger.Info().
		Str("connection_id", conn.ID()).
		Str("user_id", identity.UserID).
		Str("email", identity.Email).
		Str("room_id", conn.RoomID()).
		Msg("user connected")
	return nil
}

// Dispatch processes one inbound payload from conn. The payload is relayed
// to the rest of the room unchanged; a message mentioning the trigger also
// schedules one assistant reply for the whole room.
func (d *Dispatcher) Dispatch(ctx context.Context, conn interfaces.Connection, raw []byte) error {
	if !conn.IsActive() {
		return ErrConnectionNotActive
	}

	msg, err := types.ParseInboundMessage(raw)
	if err != nil {
		if noticeErr := conn.WriteJSON(types.NewSystemNotice(types.EventInvalidMessage, err.Error())); noticeErr != nil {
			d.logger.Debug().Err(noticeErr).Str("connection_id", conn.ID()).Msg("failed to send notice")
		}
		return fmt.Errorf("parse message: %w", err)
	}

	roomID := conn.RoomID()
	d.rooms.Broadcast(roomID, msg.Raw, conn.ID())
	metrics.MessagesRelayed.Inc()

	prompt, triggered := ExtractPrompt(msg.Message, d.trigger)
	if !triggered {
		return nil
	}

	identity := conn.Identity()
	if !d.limiter.Allow(identity.UserID) {
		metrics.AssistantRequests.WithLabelValues("rate_limited").Inc()
		d.logger.Info().Str("user_id", identity.UserID).Str("room_id", roomID).Msg("assistant request rate limited")
		notice := types.NewSystemNotice(types.EventRateLimited, "Too many AI requests. Please wait a moment and try again.")
		if err := conn.WriteJSON(notice); err != nil {
			d.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("failed to send notice")
		}
		return nil
	}

	d.schedule(types.AugmentationRequest{Prompt: prompt, RoomID: roomID})
	return nil
}

func (d *Dispatcher) schedule(req types.AugmentationRequest) {
	if d.ctx.Err() != nil {
		d.logger.Warn().Str("room_id", req.RoomID).Msg("dropping assistant request during shutdown")
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		reply := d.augmenter.Augment(d.ctx, req.Prompt)
		payload, err := json.Marshal(types.NewAssistantMessage(reply))
		if err != nil {
			d.logger.Error().Err(err).Str("room_id", req.RoomID).Msg("failed to encode assistant reply")
			return
		}

		delivered := d.rooms.Broadcast(req.RoomID, payload)
		d.logger.Debug().
			Str("room_id", req.RoomID).
			Int("delivered", delivered).
			Msg("assistant reply broadcast")
	}()
}

// Disconnect closes conn's dispatch state and removes it from its room.
// Repeated calls are no-ops.
func (d *Dispatcher) Disconnect(conn interfaces.Connection) {
	if !conn.MarkClosed() {
		return
	}
	d.rooms.Leave(conn)

	identity := conn.Identity()
	d.logger.Info().
		Str("connection_id", conn.ID()).
		Str("user_id", identity.UserID).
		Str("email", identity.Email).
		Str("room_id", conn.RoomID()).
		Msg("user disconnected")
}

// Wait blocks until every scheduled assistant reply has been broadcast.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// ExtractPrompt reports whether text mentions trigger and returns the text
// with the first mention removed and surrounding whitespace trimmed.
func ExtractPrompt(text, trigger string) (string, bool) {
	if trigger == "" || !strings.Contains(text, trigger) {
		return "", false
	}
	return strings.TrimSpace(strings.Replace(text, trigger, "", 1)), true
}
