package presence

import (
	"math/rand/v2"
	"time"
)

// Handle identifies one live transport connection. The zero value means offline.
type Handle string

// Palette is the fixed set of colors handed out to new identities.
var Palette = []string{"#ff4b4b", "#3fa7ff", "#4dff91", "#ff8a3f", "#b04bff", "#ff3fcf"}

// Picks a palette color uniformly at random
func RandomColor() string {
	return Palette[rand.IntN(len(Palette))]
}

// A participant's persistent record within one room
type Identity struct {
	Key      string
	Handle   Handle
	Name     string
	Color    string
	JoinedAt time.Time
	LastSeen time.Time
}

func (i Identity) Online() bool {
	return i.Handle != ""
}

// Member is the roster entry sent to clients. ID is null while offline.
type Member struct {
	ID    *string `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
}

type Option func(*Tracker)

// WithColorPicker replaces the random palette draw, mainly for tests
func WithColorPicker(pick func() string) Option {
	return func(t *Tracker) { t.pickColor = pick }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the roster of one room keyed by stable key, kept in first-join order.
//
// It is not safe for concurrent use; the owning room serializes access.
type Tracker struct {
	order     []*Identity
	byKey     map[string]*Identity
	pickColor func() string
	now       func() time.Time
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		byKey:     make(map[string]*Identity),
		pickColor: RandomColor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join attaches handle to the identity for key, creating it with a fresh color
// if the key is new. The display name is overwritten, the color never is.
func (t *Tracker) Join(key string, h Handle, name string) (roster []Member, created bool) {
	now := t.now()
	id, ok := t.byKey[key]
	if !ok {
		id = &Identity{Key: key, Color: t.pickColor(), JoinedAt: now}
		t.byKey[key] = id
		t.order = append(t.order, id)
		created = true
	}
	id.Handle = h
	id.Name = name
	id.LastSeen = now
	return t.Roster(), created
}

// Leave marks the identity holding h offline. found is false for unknown or
// already released handles.
func (t *Tracker) Leave(h Handle) (departed Identity, roster []Member, found bool) {
	if h == "" {
		return Identity{}, nil, false
	}
	for _, id := range t.order {
		if id.Handle != h {
			continue
		}
		departed = *id
		id.Handle = ""
		id.LastSeen = t.now()
		return departed, t.Roster(), true
	}
	return Identity{}, nil, false
}

func (t *Tracker) Roster() []Member {
	out := make([]Member, len(t.order))
	for i, id := range t.order {
		m := Member{Name: id.Name, Color: id.Color}
		if id.Online() {
			h := string(id.Handle)
			m.ID = &h
		}
		out[i] = m
	}
	return out
}

func (t *Tracker) Lookup(key string) (Identity, bool) {
	id, ok := t.byKey[key]
	if !ok {
		return Identity{}, false
	}
	return *id, true
}

// Online returns the handles of every connected identity in roster order.
func (t *Tracker) Online() []Handle {
	var out []Handle
	for _, id := range t.order {
		if id.Online() {
			out = append(out, id.Handle)
		}
	}
	return out
}

func (t *Tracker) AnyOnline() bool {
	for _, id := range t.order {
		if id.Online() {
			return true
		}
	}
	return false
}

func (t *Tracker) Len() int { return len(t.order) }

// EvictOffline removes identities that went offline before cutoff and returns them.
func (t *Tracker) EvictOffline(cutoff time.Time) []Identity {
	var evicted []Identity
	kept := t.order[:0]
	for _, id := range t.order {
		if !id.Online() && id.LastSeen.Before(cutoff) {
			evicted = append(evicted, *id)
			delete(t.byKey, id.Key)
			continue
		}
		kept = append(kept, id)
	}
	for i := len(kept); i < len(t.order); i++ {
		t.order[i] = nil
	}
	t.order = kept
	return evicted
}
