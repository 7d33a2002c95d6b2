package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manpreetbhatti/scribble/internal/events"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "scribble-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "ledger.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func record(t *testing.T, db *Database, kind events.Kind, room string, at time.Time) {
	t.Helper()
	err := db.Record(context.Background(), events.Event{Kind: kind, RoomID: room, Key: "k1", Name: "Ada", At: at})
	if err != nil {
		t.Fatalf("Failed to record %s: %v", kind, err)
	}
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory ledger: %v", err)
	}
	defer db.Close()

	record(t, db, events.KindRoomOpened, "mem", time.Now())

	room, err := db.GetRoom(context.Background(), "mem")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist across queries on the same in-memory ledger")
	}
}

func TestRoomCounters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	record(t, db, events.KindRoomOpened, "A", base)
	record(t, db, events.KindIdentityJoined, "A", base.Add(time.Second))
	record(t, db, events.KindIdentityRejoined, "A", base.Add(2*time.Second))
	record(t, db, events.KindCanvasCleared, "A", base.Add(3*time.Second))
	record(t, db, events.KindRoomClosed, "A", base.Add(4*time.Second))
	record(t, db, events.KindRoomOpened, "A", base.Add(time.Hour))

	room, err := db.GetRoom(context.Background(), "A")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist")
	}
	if room.OpenCount != 2 {
		t.Errorf("Expected open count 2, got %d", room.OpenCount)
	}
	if room.JoinCount != 2 {
		t.Errorf("Expected join count 2, got %d", room.JoinCount)
	}
	if room.ClearCount != 1 {
		t.Errorf("Expected clear count 1, got %d", room.ClearCount)
	}
	if !room.FirstOpenedAt.Equal(base) {
		t.Errorf("Expected first opened %v, got %v", base, room.FirstOpenedAt)
	}
	if !room.LastOpenedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("Expected last opened %v, got %v", base.Add(time.Hour), room.LastOpenedAt)
	}
	if room.LastClosedAt == nil || !room.LastClosedAt.Equal(base.Add(4*time.Second)) {
		t.Errorf("Expected last closed %v, got %v", base.Add(4*time.Second), room.LastClosedAt)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	room, err := db.GetRoom(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Room should be nil when never recorded")
	}
}

func TestListRooms(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now()
	record(t, db, events.KindRoomOpened, "old", base.Add(-time.Hour))
	record(t, db, events.KindRoomOpened, "new", base)

	rooms, err := db.ListRooms(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != "new" {
		t.Errorf("Expected most recently opened room first, got %s", rooms[0].ID)
	}
	if rooms[1].LastClosedAt != nil {
		t.Error("Room that never closed should have no close time")
	}
}

func TestListEventsNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now()
	record(t, db, events.KindRoomOpened, "A", base)
	record(t, db, events.KindIdentityJoined, "A", base)
	record(t, db, events.KindIdentityLeft, "A", base)
	record(t, db, events.KindRoomOpened, "B", base)

	evts, err := db.ListEvents(context.Background(), "A", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(evts))
	}
	if evts[0].Kind != string(events.KindIdentityLeft) {
		t.Errorf("Expected newest event first, got %s", evts[0].Kind)
	}
	if evts[2].Kind != string(events.KindRoomOpened) {
		t.Errorf("Expected oldest event last, got %s", evts[2].Kind)
	}
	if evts[1].StableKey != "k1" || evts[1].Name != "Ada" {
		t.Errorf("Unexpected identity fields: %+v", evts[1])
	}

	page, err := db.ListEvents(context.Background(), "A", 1, 1)
	if err != nil {
		t.Fatalf("Failed to page events: %v", err)
	}
	if len(page) != 1 || page[0].Kind != string(events.KindIdentityJoined) {
		t.Errorf("Unexpected page: %+v", page)
	}
}

func TestPruneEventsBefore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	record(t, db, events.KindRoomOpened, "A", now.Add(-48*time.Hour))
	record(t, db, events.KindIdentityJoined, "A", now.Add(-47*time.Hour))
	record(t, db, events.KindIdentityLeft, "A", now)

	n, err := db.PruneEventsBefore(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 pruned events, got %d", n)
	}

	evts, _ := db.ListEvents(context.Background(), "A", 10, 0)
	if len(evts) != 1 {
		t.Errorf("Expected 1 remaining event, got %d", len(evts))
	}

	room, _ := db.GetRoom(context.Background(), "A")
	if room == nil || room.OpenCount != 1 {
		t.Error("Pruning should keep room counters")
	}
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	stats, err := db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("Failed to get stats on empty ledger: %v", err)
	}
	if stats["room_count"] != 0 {
		t.Errorf("Expected 0 rooms, got %v", stats["room_count"])
	}

	now := time.Now()
	record(t, db, events.KindRoomOpened, "A", now)
	record(t, db, events.KindIdentityJoined, "A", now)
	record(t, db, events.KindRoomOpened, "B", now)

	stats, err = db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats["room_count"] != 2 {
		t.Errorf("Expected 2 rooms, got %v", stats["room_count"])
	}
	if stats["event_count"] != 3 {
		t.Errorf("Expected 3 events, got %v", stats["event_count"])
	}
	if stats["join_count"] != int64(1) {
		t.Errorf("Expected 1 join, got %v", stats["join_count"])
	}
}
