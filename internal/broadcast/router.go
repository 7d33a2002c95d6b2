package broadcast

import (
	"log/slog"

	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/protocol"
)

// Scope says which members of a room receive an event
type Scope int

const (
	// every online member except the origin
	ScopeOthers Scope = iota
	// every online member including the origin
	ScopeEveryone
	// the origin connection only
	ScopeOrigin
)

func (s Scope) String() string {
	switch s {
	case ScopeOthers:
		return "others"
	case ScopeEveryone:
		return "everyone"
	case ScopeOrigin:
		return "origin"
	default:
		return "unknown"
	}
}

// ScopeOf is the routing policy for outbound events. Unknown events stay
// with the origin.
func ScopeOf(event protocol.Event) Scope {
	switch event {
	case protocol.EventStroke, protocol.EventCursor, protocol.EventUserLeft:
		return ScopeOthers
	case protocol.EventUpdateCanvas, protocol.EventClearCanvas, protocol.EventUpdateUserList:
		return ScopeEveryone
	default:
		return ScopeOrigin
	}
}

// Sender delivers one encoded frame to one connection without blocking.
type Sender interface {
	Send(to presence.Handle, msg []byte)
}

// Router encodes events once and fans them out according to ScopeOf.
type Router struct {
	sender Sender
	logger *slog.Logger
}

func NewRouter(sender Sender, logger *slog.Logger) *Router {
	return &Router{
		sender: sender,
		logger: logger.With("component", "router"),
	}
}

// Recipients applies the scope of event to the online handles of a room.
func Recipients(event protocol.Event, origin presence.Handle, online []presence.Handle) []presence.Handle {
	switch ScopeOf(event) {
	case ScopeOrigin:
		if origin == "" {
			return nil
		}
		return []presence.Handle{origin}
	case ScopeOthers:
		out := make([]presence.Handle, 0, len(online))
		for _, h := range online {
			if h != origin {
				out = append(out, h)
			}
		}
		return out
	default:
		return online
	}
}

// Route sends event with data to its recipients among online. Encoding
// failures are logged and the event is dropped.
func (r *Router) Route(event protocol.Event, data any, origin presence.Handle, online []presence.Handle) int {
	to := Recipients(event, origin, online)
	if len(to) == 0 {
		return 0
	}

	msg, err := protocol.Encode(event, data)
	if err != nil {
		r.logger.Error("dropping event", "event", event, "error", err)
		return 0
	}
	for _, h := range to {
		r.sender.Send(h, msg)
	}
	return len(to)
}

// Reply sends an origin-scoped event straight to one connection.
func (r *Router) Reply(to presence.Handle, event protocol.Event, data any) {
	r.Route(event, data, to, nil)
}
