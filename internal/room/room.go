package room

import (
	"sync"
	"time"

	"github.com/manpreetbhatti/scribble/internal/canvas"
	"github.com/manpreetbhatti/scribble/internal/presence"
)

// State is the mutable part of a room. It is only reachable through Room.Do.
type State struct {
	Log    *canvas.StrokeLog
	Roster *presence.Tracker
}

// A collaborative drawing session
type Room struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	retired bool
}

// Creates an empty room with the given ID
func NewRoom(id string, opts ...presence.Option) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		state: State{
			Log:    canvas.NewStrokeLog(),
			Roster: presence.NewTracker(opts...),
		},
	}
}

// Do runs fn with exclusive access to the room state. It returns false without
// calling fn once the room has been removed from its registry.
func (r *Room) Do(fn func(*State)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	fn(&r.state)
	return true
}

// Point-in-time counters for one room
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Online    int       `json:"online"`
	Members   int       `json:"members"`
	Groups    int       `json:"groups"`
	Segments  int       `json:"segments"`
	RedoDepth int       `json:"redoDepth"`
}

func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// Detail is a summary together with the roster, read under one lock.
// ok is false once the room has been retired.
func (r *Room) Detail() (sum Summary, members []presence.Member, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return Summary{}, nil, false
	}
	return r.summaryLocked(), r.state.Roster.Roster(), true
}

func (r *Room) summaryLocked() Summary {
	return Summary{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Online:    len(r.state.Roster.Online()),
		Members:   r.state.Roster.Len(),
		Groups:    r.state.Log.Len(),
		Segments:  r.state.Log.SegmentCount(),
		RedoDepth: r.state.Log.RedoLen(),
	}
}
