package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Config struct {
	Interval time.Duration
	// OfflineRetention is how long an offline identity keeps its roster
	// slot. Zero keeps it for the lifetime of the room.
	OfflineRetention time.Duration
	// EventRetention bounds the ledger journal. Zero keeps everything.
	EventRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         time.Minute,
		OfflineRetention: 0,
		EventRetention:   7 * 24 * time.Hour,
	}
}

// PresenceSweeper evicts long-offline identities from live rooms.
type PresenceSweeper interface {
	SweepOffline(now time.Time, retention time.Duration) int
}

// EventPruner trims the activity ledger.
type EventPruner interface {
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs retention passes on a ticker.
type Service struct {
	presence PresenceSweeper
	ledger   EventPruner
	config   Config
	logger   *slog.Logger
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a sweeper. Either dependency may be nil.
func New(presence PresenceSweeper, ledger EventPruner, config Config, logger *slog.Logger) *Service {
	return &Service{
		presence: presence,
		ledger:   ledger,
		config:   config,
		logger:   logger.With("component", "sweeper"),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Enabled reports whether any retention policy is configured.
func (s *Service) Enabled() bool {
	return (s.presence != nil && s.config.OfflineRetention > 0) ||
		(s.ledger != nil && s.config.EventRetention > 0)
}

func (s *Service) Start() {
	if !s.Enabled() || s.config.Interval <= 0 {
		s.logger.Info("sweeper disabled")
		return
	}
	s.wg.Add(1)
	go s.run()
	s.logger.Info("sweeper started",
		"interval", s.config.Interval,
		"offline_retention", s.config.OfflineRetention,
		"event_retention", s.config.EventRetention)
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepNow(context.Background())
		}
	}
}

// Result reports what one pass removed
type Result struct {
	Evicted int
	Pruned  int64
}

// SweepNow runs one retention pass immediately.
func (s *Service) SweepNow(ctx context.Context) Result {
	var res Result
	now := s.now()

	if s.presence != nil && s.config.OfflineRetention > 0 {
		res.Evicted = s.presence.SweepOffline(now, s.config.OfflineRetention)
	}

	if s.ledger != nil && s.config.EventRetention > 0 {
		n, err := s.ledger.PruneEventsBefore(ctx, now.Add(-s.config.EventRetention))
		if err != nil {
			s.logger.Error("prune ledger failed", "error", err)
		}
		res.Pruned = n
	}

	if res.Evicted > 0 || res.Pruned > 0 {
		s.logger.Info("sweep finished", "evicted", res.Evicted, "pruned_events", res.Pruned)
	}
	return res
}
