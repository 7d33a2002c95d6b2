package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/scribble/internal/canvas"
)

// ErrMalformed is returned for frames and payloads that cannot be decoded
var ErrMalformed = errors.New("malformed message")

// Names the kind of message carried in an envelope
type Event string

// Sent by clients
const (
	EventJoinRoom  Event = "join-room"
	EventStroke    Event = "stroke"
	EventUndo      Event = "undo"
	EventRedo      Event = "redo"
	EventClearRoom Event = "clear-room"
	EventCursor    Event = "cursor"
)

// Sent by the server
const (
	EventInitCanvas     Event = "init-canvas"
	EventUpdateCanvas   Event = "update-canvas"
	EventClearCanvas    Event = "clear-canvas"
	EventUpdateUserList Event = "update-user-list"
	EventUserLeft       Event = "user-left"
	EventErrorMessage   Event = "error-message"
)

// Envelope is the JSON object carried by every text frame
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses one inbound frame. Only the envelope is checked here, the
// payload is decoded by the handler for its event.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}

// Encode builds an outbound frame. A nil data omits the payload.
func Encode(event Event, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// DecodePayload unmarshals an envelope payload into v. An absent payload
// is treated as an empty object.
func DecodePayload(env Envelope, v any) error {
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		if errors.Is(err, canvas.ErrInvalidSegment) || errors.Is(err, ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Event, err)
	}
	return nil
}

type JoinRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	StableKey   string `json:"stableKey"`
}

// Stroke is one segment tagged with the gesture it belongs to
type Stroke struct {
	GroupID string
	Segment canvas.Segment
}

func (s Stroke) MarshalJSON() ([]byte, error) {
	return canvas.MarshalGrouped(s.GroupID, s.Segment)
}

func (s *Stroke) UnmarshalJSON(data []byte) error {
	id, seg, err := canvas.UnmarshalGrouped(data)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: stroke needs a strokeId", canvas.ErrInvalidSegment)
	}
	*s = Stroke{GroupID: id, Segment: seg}
	return nil
}

// Strokes flattens groups into the replay list sent on join and after undo or redo.
func Strokes(groups []canvas.Group) []Stroke {
	out := []Stroke{}
	for _, g := range groups {
		for _, seg := range g.Segments {
			out = append(out, Stroke{GroupID: g.ID, Segment: seg})
		}
	}
	return out
}

type CursorRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (c CursorRequest) Validate() error {
	if c.X == nil || c.Y == nil {
		return fmt.Errorf("%w: cursor needs x and y", ErrMalformed)
	}
	return nil
}

// Cursor is the live pointer position relayed to peers, enriched with the
// sender's roster attributes.
type Cursor struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type UserLeft struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
