// Package sweeper runs the periodic expiry passes over the session and
// room registries.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/protocol"
	"github.com/bluefox-project/bluefox/internal/room"
	"github.com/bluefox-project/bluefox/internal/session"
)

// Sweeper expires idle sessions and abandoned rooms on a fixed cadence.
// Each pass snapshots the registry before removing anything, so the
// sweep never fights in-flight operations over map iteration.
type Sweeper struct {
	cfg      *config.Config
	sessions *session.Registry
	rooms    *room.Registry
	eventBus *events.EventBus
}

// NewSweeper creates a sweeper over both registries. eventBus may be nil.
func NewSweeper(cfg *config.Config, sessions *session.Registry, rooms *room.Registry, eventBus *events.EventBus) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		sessions: sessions,
		rooms:    rooms,
		eventBus: eventBus,
	}
}

// Start runs the sweep loop. Blocks until ctx is done. A failed pass is
// logged and the loop carries on; one bad cleanup never halts expiry.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	log.Info().Dur("interval", interval).Msg("sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass performs one sweep of both registries.
func (s *Sweeper) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sweep pass panicked, continuing")
		}
	}()

	start := time.Now()

	expiredSessions := s.sessions.SweepExpired(s.cfg.SessionIdleTimeout())
	removedRooms := s.rooms.SweepAbandoned(s.cfg.RoomIdleTimeout())
	sweptRooms := len(removedRooms)
	if sweptRooms > 0 {
		s.detachMembers(removedRooms)
	}

	if expiredSessions == 0 && sweptRooms == 0 {
		log.Trace().Dur("took", time.Since(start)).Msg("sweep pass, nothing to do")
		return
	}

	log.Info().
		Int("expired_sessions", expiredSessions).
		Int("swept_rooms", sweptRooms).
		Dur("took", time.Since(start)).
		Msg("sweep pass completed")

	if s.eventBus != nil {
		if expiredSessions > 0 {
			s.eventBus.Emit(ctx, events.Event{
				Type:    events.EventSessionsSwept,
				Source:  "sweeper",
				Payload: events.SweepPayload{Removed: expiredSessions},
			})
		}
		if sweptRooms > 0 {
			s.eventBus.Emit(ctx, events.Event{
				Type:    events.EventRoomsSwept,
				Source:  "sweeper",
				Payload: events.SweepPayload{Removed: sweptRooms},
			})
		}
	}
}

// detachMembers unbinds sessions still pointing at swept rooms and queues
// them a removal notice, so a dangling room id never reaches a handler.
func (s *Sweeper) detachMembers(roomIDs []int32) {
	gone := make(map[int32][]byte, len(roomIDs))
	for _, id := range roomIDs {
		notice := protocol.NewObject().
			PutInt("roomId", id).
			PutString("reason", "expired")
		gone[id] = protocol.NewFrame(protocol.KindRoomRemoved, 0, notice.Value()).Encode()
	}

	for _, sess := range s.sessions.Snapshot() {
		buf, ok := gone[sess.RoomID()]
		if !ok {
			continue
		}
		s.sessions.BindRoom(sess.ID(), 0)
		s.sessions.Deliver(sess.ID(), buf)
	}
}
