package session

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/manpreetbhatti/scribble/internal/canvas"
	"github.com/manpreetbhatti/scribble/internal/events"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/protocol"
	"github.com/manpreetbhatti/scribble/internal/room"
)

type State int

const (
	StateConnected State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	msgMissingKey  = "Missing clientId."
	msgMissingRoom = "Missing roomId."
	msgRetryJoin   = "Room is closing, please join again."
)

// how often Join re-ensures a room that was retired under it
const maxJoinAttempts = 3

// Session is the server side of one connection. It must only be driven from
// that connection's read goroutine.
type Session struct {
	lc     *Lifecycle
	handle presence.Handle
	state  State
	room   *room.Room
	roomID string
	key    string
	logger *slog.Logger
}

func (s *Session) Handle() presence.Handle { return s.handle }
func (s *Session) State() State            { return s.state }
func (s *Session) RoomID() string          { return s.roomID }

// Dispatch routes one decoded envelope to its handler.
func (s *Session) Dispatch(env protocol.Envelope) {
	if s.state == StateDisconnected {
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		var req protocol.JoinRequest
		if err := protocol.DecodePayload(env, &req); err != nil {
			s.reject(err)
			return
		}
		s.Join(req)
	case protocol.EventStroke:
		if s.state != StateJoined {
			return
		}
		var stroke protocol.Stroke
		if err := protocol.DecodePayload(env, &stroke); err != nil {
			s.reject(err)
			return
		}
		s.Stroke(stroke)
	case protocol.EventCursor:
		if s.state != StateJoined {
			return
		}
		var req protocol.CursorRequest
		err := protocol.DecodePayload(env, &req)
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			s.reject(err)
			return
		}
		s.Cursor(*req.X, *req.Y)
	case protocol.EventUndo:
		s.Undo()
	case protocol.EventRedo:
		s.Redo()
	case protocol.EventClearRoom:
		s.Clear()
	default:
		s.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (s *Session) reject(err error) {
	s.logger.Debug("rejected payload", "error", err)
	msg := err.Error()
	if errors.Is(err, canvas.ErrInvalidSegment) || errors.Is(err, protocol.ErrMalformed) {
		msg = "Invalid message: " + msg
	}
	s.lc.router.Reply(s.handle, protocol.EventErrorMessage, msg)
}

// Join attaches the connection to a room under a stable key, replays the
// canvas to it and pushes the roster to the room.
func (s *Session) Join(req protocol.JoinRequest) {
	if s.state == StateDisconnected {
		return
	}
	roomID := strings.TrimSpace(req.RoomID)
	key := strings.TrimSpace(req.StableKey)
	name := strings.TrimSpace(req.DisplayName)

	if key == "" {
		s.lc.router.Reply(s.handle, protocol.EventErrorMessage, msgMissingKey)
		return
	}
	if roomID == "" {
		s.lc.router.Reply(s.handle, protocol.EventErrorMessage, msgMissingRoom)
		return
	}

	if s.state == StateJoined {
		if s.room.ID != roomID {
			s.leave()
		} else if s.key != key {
			s.detach()
		}
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		r, roomCreated := s.lc.registry.Ensure(roomID)
		var created bool
		ok := r.Do(func(st *room.State) {
			var roster []presence.Member
			roster, created = st.Roster.Join(key, s.handle, name)
			s.lc.router.Reply(s.handle, protocol.EventInitCanvas, protocol.Strokes(st.Log.Groups()))
			s.lc.router.Route(protocol.EventUpdateUserList, roster, s.handle, st.Roster.Online())
		})
		if !ok {
			// retired between Ensure and Do
			continue
		}

		s.state, s.room, s.roomID, s.key = StateJoined, r, roomID, key
		s.logger = s.lc.logger.With("conn", string(s.handle), "room_id", roomID)

		if roomCreated {
			s.lc.publish(events.KindRoomOpened, roomID, "", "")
		}
		kind := events.KindIdentityRejoined
		if created {
			kind = events.KindIdentityJoined
		}
		s.lc.publish(kind, roomID, key, name)
		s.logger.Info("joined room", "stable_key", key, "new_identity", created)
		return
	}

	s.logger.Warn("join gave up on retiring room", "room_id", roomID)
	s.lc.router.Reply(s.handle, protocol.EventErrorMessage, msgRetryJoin)
}

// withRoom runs fn on the joined room while this connection still holds its
// identity there. Once the room is retired or another connection has taken
// over the stable key, the session falls back to connected and fn is skipped.
func (s *Session) withRoom(fn func(st *room.State)) bool {
	if s.state != StateJoined {
		return false
	}
	held := false
	live := s.room.Do(func(st *room.State) {
		id, ok := st.Roster.Lookup(s.key)
		if !ok || id.Handle != s.handle {
			return
		}
		held = true
		fn(st)
	})
	if live && held {
		return true
	}
	s.logger.Debug("session lost its room", "room_retired", !live)
	s.reset()
	return false
}

func (s *Session) Stroke(stroke protocol.Stroke) {
	s.withRoom(func(st *room.State) {
		st.Log.Append(stroke.GroupID, stroke.Segment)
		s.lc.router.Route(protocol.EventStroke, stroke, s.handle, st.Roster.Online())
	})
}

func (s *Session) Undo() {
	s.withRoom(func(st *room.State) {
		if _, ok := st.Log.Undo(); !ok {
			return
		}
		s.lc.router.Route(protocol.EventUpdateCanvas, protocol.Strokes(st.Log.Groups()), s.handle, st.Roster.Online())
	})
}

func (s *Session) Redo() {
	s.withRoom(func(st *room.State) {
		if _, ok := st.Log.Redo(); !ok {
			return
		}
		s.lc.router.Route(protocol.EventUpdateCanvas, protocol.Strokes(st.Log.Groups()), s.handle, st.Roster.Online())
	})
}

func (s *Session) Clear() {
	cleared := s.withRoom(func(st *room.State) {
		st.Log.Clear()
		s.lc.router.Route(protocol.EventClearCanvas, nil, s.handle, st.Roster.Online())
	})
	if cleared {
		s.lc.publish(events.KindCanvasCleared, s.roomID, s.key, "")
	}
}

// Cursor relays a pointer position to peers. Nothing is stored.
func (s *Session) Cursor(x, y float64) {
	s.withRoom(func(st *room.State) {
		id, ok := st.Roster.Lookup(s.key)
		if !ok {
			return
		}
		c := protocol.Cursor{ID: string(s.handle), Name: id.Name, Color: id.Color, X: x, Y: y}
		s.lc.router.Route(protocol.EventCursor, c, s.handle, st.Roster.Online())
	})
}

// Disconnect is terminal. It is safe to call more than once.
func (s *Session) Disconnect() {
	if s.state == StateJoined {
		s.leave()
	}
	s.state = StateDisconnected
}

// detach releases the current identity without giving up the room
func (s *Session) detach() bool {
	var departed presence.Identity
	var found bool
	s.withRoom(func(st *room.State) {
		var roster []presence.Member
		departed, roster, found = st.Roster.Leave(s.handle)
		if !found {
			return
		}
		online := st.Roster.Online()
		s.lc.router.Route(protocol.EventUserLeft, protocol.UserLeft{ID: string(s.handle), Name: departed.Name}, s.handle, online)
		s.lc.router.Route(protocol.EventUpdateUserList, roster, s.handle, online)
	})
	if found {
		s.lc.publish(events.KindIdentityLeft, s.roomID, departed.Key, departed.Name)
	}
	return found
}

func (s *Session) leave() {
	r := s.room
	if s.detach() {
		s.logger.Info("left room")
	}
	if s.lc.registry.Release(r) {
		s.lc.publish(events.KindRoomClosed, r.ID, "", "")
	}
	s.reset()
}

func (s *Session) reset() {
	s.state, s.room, s.roomID, s.key = StateConnected, nil, "", ""
	s.logger = s.lc.logger.With("conn", string(s.handle))
}
