package events

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind names a room lifecycle event
type Kind string

const (
	KindRoomOpened       Kind = "room.opened"
	KindRoomClosed       Kind = "room.closed"
	KindIdentityJoined   Kind = "identity.joined"
	KindIdentityRejoined Kind = "identity.rejoined"
	KindIdentityLeft     Kind = "identity.left"
	KindIdentityEvicted  Kind = "identity.evicted"
	KindCanvasCleared    Kind = "canvas.cleared"
)

// One thing that happened to a room or one of its identities
type Event struct {
	Kind   Kind      `json:"kind"`
	RoomID string    `json:"roomId"`
	Key    string    `json:"stableKey,omitempty"`
	Name   string    `json:"name,omitempty"`
	At     time.Time `json:"at"`
}

// Sink consumes events delivered by a Bus
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Bus decouples room handlers from slow sinks. Publish never blocks; when
// the buffer is full the event is dropped.
type Bus struct {
	queue   chan Event
	sinks   []Sink
	logger  *slog.Logger
	dropped atomic.Int64
	timeout time.Duration
}

func NewBus(size int, logger *slog.Logger, sinks ...Sink) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		queue:   make(chan Event, size),
		sinks:   sinks,
		logger:  logger.With("component", "events"),
		timeout: 5 * time.Second,
	}
}

func (b *Bus) Publish(e Event) bool {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case b.queue <- e:
		return true
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping event", "kind", e.Kind, "room_id", e.RoomID, "dropped", n)
		return false
	}
}

func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Run delivers events until ctx is cancelled, then flushes what is still buffered.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.deliver(ctx, e)
		case <-ctx.Done():
			b.flush()
			return
		}
	}
}

func (b *Bus) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	for {
		select {
		case e := <-b.queue:
			b.deliver(ctx, e)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	for _, s := range b.sinks {
		if err := s.Record(ctx, e); err != nil {
			b.logger.Error("sink failed", "kind", e.Kind, "room_id", e.RoomID, "error", err)
		}
	}
}
