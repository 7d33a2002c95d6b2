package room

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/manpreetbhatti/scribble/internal/presence"
)

// Registry owns every live room of one server instance.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	trackerOp []presence.Option
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger, opts ...presence.Option) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		trackerOp: opts,
		logger:    logger.With("component", "registry"),
	}
}

// Ensure returns the room for id, creating an empty one if none exists.
func (g *Registry) Ensure(id string) (*Room, bool) {
	g.mu.RLock()
	r, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return r, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r = NewRoom(id, g.trackerOp...)
	g.rooms[id] = r
	g.logger.Info("room created", "room_id", id, "rooms", len(g.rooms))
	return r, true
}

func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// DeleteIfEmpty removes the room when none of its identities is online.
// A removed room is retired, so later Do calls on stale pointers fail.
func (g *Registry) DeleteIfEmpty(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[id]
	if !ok {
		return false
	}
	return g.deleteLocked(r)
}

// Release is DeleteIfEmpty for a specific room instance. It does nothing
// when r has already been replaced by a newer room under the same id.
func (g *Registry) Release(r *Room) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.rooms[r.ID]; !ok || cur != r {
		return false
	}
	return g.deleteLocked(r)
}

// deleteLocked requires g.mu
func (g *Registry) deleteLocked(r *Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Roster.AnyOnline() {
		return false
	}
	r.retired = true
	delete(g.rooms, r.ID)
	g.logger.Info("room deleted", "room_id", r.ID, "rooms", len(g.rooms))
	return true
}

// Rooms returns the live rooms sorted by id.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Registry) Summaries() []Summary {
	rooms := g.Rooms()
	out := make([]Summary, len(rooms))
	for i, r := range rooms {
		out[i] = r.Summary()
	}
	return out
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
