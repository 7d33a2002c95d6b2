package session

import (
	"log/slog"
	"time"

	"github.com/manpreetbhatti/scribble/internal/broadcast"
	"github.com/manpreetbhatti/scribble/internal/events"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/protocol"
	"github.com/manpreetbhatti/scribble/internal/room"
)

// Publisher receives lifecycle events. Implementations must not block.
type Publisher interface {
	Publish(e events.Event) bool
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) bool { return true }

// Lifecycle maps connection moments onto rooms, rosters and stroke logs.
type Lifecycle struct {
	registry  *room.Registry
	router    *broadcast.Router
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewLifecycle wires the core together. A nil publisher discards events.
func NewLifecycle(registry *room.Registry, router *broadcast.Router, publisher Publisher, logger *slog.Logger) *Lifecycle {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Lifecycle{
		registry:  registry,
		router:    router,
		publisher: publisher,
		logger:    logger.With("component", "session"),
		now:       time.Now,
	}
}

// Connect starts tracking a freshly established connection.
func (l *Lifecycle) Connect(h presence.Handle) *Session {
	return &Session{
		lc:     l,
		handle: h,
		state:  StateConnected,
		logger: l.logger.With("conn", string(h)),
	}
}

func (l *Lifecycle) publish(kind events.Kind, roomID, key, name string) {
	l.publisher.Publish(events.Event{Kind: kind, RoomID: roomID, Key: key, Name: name, At: l.now()})
}

// SweepOffline evicts identities that have been offline for longer than
// retention from every live room and pushes the shrunken roster to whoever
// is still online. It returns the number of evicted identities.
func (l *Lifecycle) SweepOffline(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := now.Add(-retention)

	total := 0
	for _, r := range l.registry.Rooms() {
		var evicted []presence.Identity
		r.Do(func(st *room.State) {
			evicted = st.Roster.EvictOffline(cutoff)
			if len(evicted) > 0 {
				l.router.Route(protocol.EventUpdateUserList, st.Roster.Roster(), "", st.Roster.Online())
			}
		})
		for _, id := range evicted {
			l.publish(events.KindIdentityEvicted, r.ID, id.Key, id.Name)
		}
		if len(evicted) > 0 {
			l.logger.Info("evicted offline identities", "room_id", r.ID, "count", len(evicted))
		}
		total += len(evicted)
	}
	return total
}
