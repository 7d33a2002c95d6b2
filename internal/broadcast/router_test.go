package broadcast_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/manpreetbhatti/scribble/internal/broadcast"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent map[presence.Handle][][]byte
}

func (r *recorder) Send(to presence.Handle, msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[presence.Handle][][]byte)
	}
	r.sent[to] = append(r.sent[to], msg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScopeOf(t *testing.T) {
	tests := []struct {
		event protocol.Event
		want  broadcast.Scope
	}{
		{protocol.EventStroke, broadcast.ScopeOthers},
		{protocol.EventCursor, broadcast.ScopeOthers},
		{protocol.EventUserLeft, broadcast.ScopeOthers},
		{protocol.EventUpdateCanvas, broadcast.ScopeEveryone},
		{protocol.EventClearCanvas, broadcast.ScopeEveryone},
		{protocol.EventUpdateUserList, broadcast.ScopeEveryone},
		{protocol.EventInitCanvas, broadcast.ScopeOrigin},
		{protocol.EventErrorMessage, broadcast.ScopeOrigin},
		{protocol.Event("mystery"), broadcast.ScopeOrigin},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.want, broadcast.ScopeOf(tt.event), "got %s", broadcast.ScopeOf(tt.event))
		})
	}
}

func TestRecipients(t *testing.T) {
	online := []presence.Handle{"a", "b", "c"}

	assert.Equal(t, []presence.Handle{"a", "c"}, broadcast.Recipients(protocol.EventStroke, "b", online))
	assert.Equal(t, online, broadcast.Recipients(protocol.EventClearCanvas, "b", online))
	assert.Equal(t, []presence.Handle{"b"}, broadcast.Recipients(protocol.EventInitCanvas, "b", online))
	assert.Empty(t, broadcast.Recipients(protocol.EventStroke, "a", []presence.Handle{"a"}))
	assert.Nil(t, broadcast.Recipients(protocol.EventErrorMessage, "", online))
}

func TestRouter_Route(t *testing.T) {
	rec := &recorder{}
	router := broadcast.NewRouter(rec, testLogger())

	n := router.Route(protocol.EventClearCanvas, nil, "a", []presence.Handle{"a", "b"})
	require.Equal(t, 2, n)
	require.Len(t, rec.sent["a"], 1)
	assert.JSONEq(t, `{"event":"clear-canvas"}`, string(rec.sent["b"][0]))

	n = router.Route(protocol.EventUserLeft, protocol.UserLeft{ID: "a", Name: "Ada"}, "a", []presence.Handle{"b"})
	assert.Equal(t, 1, n)
	assert.Len(t, rec.sent["b"], 2)
	assert.Len(t, rec.sent["a"], 1)
}

func TestRouter_ReplyGoesToOriginOnly(t *testing.T) {
	rec := &recorder{}
	router := broadcast.NewRouter(rec, testLogger())

	router.Reply("x", protocol.EventErrorMessage, "Missing clientId.")

	require.Len(t, rec.sent, 1)
	assert.JSONEq(t, `{"event":"error-message","data":"Missing clientId."}`, string(rec.sent["x"][0]))
}

func TestRouter_UnencodableDataIsDropped(t *testing.T) {
	rec := &recorder{}
	router := broadcast.NewRouter(rec, testLogger())

	n := router.Route(protocol.EventUpdateUserList, make(chan int), "a", []presence.Handle{"a"})
	assert.Zero(t, n)
	assert.Empty(t, rec.sent)
}
