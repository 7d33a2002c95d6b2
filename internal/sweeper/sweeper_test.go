package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakePresence struct {
	calls     atomic.Int32
	retention time.Duration
	evict     int
}

func (f *fakePresence) SweepOffline(_ time.Time, retention time.Duration) int {
	f.calls.Add(1)
	f.retention = retention
	return f.evict
}

type fakeLedger struct {
	cutoff time.Time
	pruned int64
	err    error
}

func (f *fakeLedger) PruneEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.pruned, f.err
}

func TestSweepNow(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePresence{evict: 2}
	l := &fakeLedger{pruned: 7}
	s := New(p, l, Config{Interval: time.Minute, OfflineRetention: time.Hour, EventRetention: 24 * time.Hour}, testLogger())
	s.now = func() time.Time { return now }

	res := s.SweepNow(context.Background())

	assert.Equal(t, Result{Evicted: 2, Pruned: 7}, res)
	assert.Equal(t, time.Hour, p.retention)
	assert.Equal(t, now.Add(-24*time.Hour), l.cutoff)
}

func TestSweepNow_ZeroRetentionSkips(t *testing.T) {
	p := &fakePresence{evict: 5}
	l := &fakeLedger{pruned: 5}
	s := New(p, l, Config{Interval: time.Minute}, testLogger())

	res := s.SweepNow(context.Background())

	assert.Zero(t, res)
	assert.Zero(t, p.calls.Load())
	assert.True(t, l.cutoff.IsZero())
	assert.False(t, s.Enabled())
}

func TestSweepNow_LedgerErrorIsContained(t *testing.T) {
	p := &fakePresence{evict: 1}
	l := &fakeLedger{err: errors.New("disk full")}
	s := New(p, l, Config{OfflineRetention: time.Minute, EventRetention: time.Minute}, testLogger())

	res := s.SweepNow(context.Background())
	assert.Equal(t, 1, res.Evicted)
	assert.Zero(t, res.Pruned)
}

func TestStartRunsOnTicker(t *testing.T) {
	p := &fakePresence{}
	s := New(p, nil, Config{Interval: 10 * time.Millisecond, OfflineRetention: time.Minute}, testLogger())

	s.Start()
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	calls := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, p.calls.Load())
}

func TestStartDisabledIsNoop(t *testing.T) {
	s := New(nil, nil, DefaultConfig(), testLogger())
	s.Start()
	s.Stop()
}
