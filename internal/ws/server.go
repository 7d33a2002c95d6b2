package ws

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/ratelimit"
	"github.com/manpreetbhatti/scribble/internal/session"
)

type Options struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	MaxViolations     int
	UpgradesPerSecond float64
	UpgradeBurst      int
	// AllowedOrigins lists accepted Origin hosts. Empty or "*" accepts any.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		PingPeriod:        54 * time.Second,
		MaxMessageSize:    1024 * 1024,
		SendBuffer:        512,
		MessagesPerSecond: 100,
		MessageBurst:      200,
		MaxViolations:     1000,
		UpgradesPerSecond: 5,
		UpgradeBurst:      20,
	}
}

// Server upgrades HTTP requests to websocket clients and attaches each one
// to a fresh session.
type Server struct {
	hub       *Hub
	lifecycle *session.Lifecycle
	upgrader  websocket.Upgrader
	upgrades  *ratelimit.ClientLimiters
	opts      Options
	logger    *slog.Logger
}

func NewServer(hub *Hub, lifecycle *session.Lifecycle, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		hub:       hub,
		lifecycle: lifecycle,
		upgrades:  ratelimit.NewClientLimiters(opts.UpgradesPerSecond, opts.UpgradeBurst),
		opts:      opts,
		logger:    logger.With("component", "ws"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Close stops background work. Connected clients are left to the hub.
func (s *Server) Close() {
	s.upgrades.Stop()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.upgrades.Allow(ip) {
		s.logger.Warn("too many connection attempts", "remote_ip", ip)
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debug("upgrade failed", "remote_ip", ip, "error", err)
		return
	}

	handle := presence.Handle(uuid.NewString())
	client := &Client{
		hub:         s.hub,
		conn:        conn,
		handle:      handle,
		send:        make(chan []byte, s.opts.SendBuffer),
		done:        make(chan struct{}),
		session:     s.lifecycle.Connect(handle),
		rateLimiter: ratelimit.NewLimiter(s.opts.MessagesPerSecond, s.opts.MessageBurst),
		opts:        s.opts,
		logger:      s.logger.With("conn", string(handle), "remote_ip", ip),
	}

	s.hub.register(client)
	s.hub.loops.Add(1)

	go client.writePump()
	go client.readPump()
}
