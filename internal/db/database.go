package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manpreetbhatti/scribble/internal/events"

	_ "modernc.org/sqlite"
)

// Database is the activity ledger: a journal of room lifecycle events with
// per-room counters. Drawing data is never written here.
type Database struct {
	db *sql.DB
}

type Room struct {
	ID            string     `json:"id"`
	FirstOpenedAt time.Time  `json:"first_opened_at"`
	LastOpenedAt  time.Time  `json:"last_opened_at"`
	LastClosedAt  *time.Time `json:"last_closed_at,omitempty"`
	OpenCount     int        `json:"open_count"`
	JoinCount     int        `json:"join_count"`
	ClearCount    int        `json:"clear_count"`
}

type Event struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	Kind      string    `json:"kind"`
	StableKey string    `json:"stable_key,omitempty"`
	Name      string    `json:"name,omitempty"`
	At        time.Time `json:"at"`
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func New(dsn string) (*Database, error) {
	if !isMemory(dsn) && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if isMemory(dsn) {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		first_opened_at INTEGER NOT NULL,
		last_opened_at INTEGER NOT NULL,
		last_closed_at INTEGER,
		open_count INTEGER NOT NULL DEFAULT 0,
		join_count INTEGER NOT NULL DEFAULT 0,
		clear_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS room_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		stable_key TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_events_room_id ON room_events(room_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_room_events_at ON room_events(at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Record appends e to the journal and updates the room counters. It
// satisfies events.Sink.
func (d *Database) Record(ctx context.Context, e events.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	ms := at.UnixMilli()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO rooms (id, first_opened_at, last_opened_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
		e.RoomID, ms, ms,
	); err != nil {
		return fmt.Errorf("ensure room %s: %w", e.RoomID, err)
	}

	var (
		update string
		args   []any
	)
	switch e.Kind {
	case events.KindRoomOpened:
		update = "UPDATE rooms SET last_opened_at = ?, open_count = open_count + 1 WHERE id = ?"
		args = []any{ms, e.RoomID}
	case events.KindRoomClosed:
		update = "UPDATE rooms SET last_closed_at = ? WHERE id = ?"
		args = []any{ms, e.RoomID}
	case events.KindIdentityJoined, events.KindIdentityRejoined:
		update = "UPDATE rooms SET join_count = join_count + 1 WHERE id = ?"
		args = []any{e.RoomID}
	case events.KindCanvasCleared:
		update = "UPDATE rooms SET clear_count = clear_count + 1 WHERE id = ?"
		args = []any{e.RoomID}
	}
	if update != "" {
		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return fmt.Errorf("update room %s: %w", e.RoomID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO room_events (room_id, kind, stable_key, name, at) VALUES (?, ?, ?, ?, ?)",
		e.RoomID, string(e.Kind), e.Key, e.Name, ms,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

const roomColumns = "id, first_opened_at, last_opened_at, last_closed_at, open_count, join_count, clear_count"

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (Room, error) {
	var (
		r           Room
		first, last int64
		closed      sql.NullInt64
	)
	if err := s.Scan(&r.ID, &first, &last, &closed, &r.OpenCount, &r.JoinCount, &r.ClearCount); err != nil {
		return Room{}, err
	}
	r.FirstOpenedAt = time.UnixMilli(first).UTC()
	r.LastOpenedAt = time.UnixMilli(last).UTC()
	if closed.Valid {
		t := time.UnixMilli(closed.Int64).UTC()
		r.LastClosedAt = &t
	}
	return r, nil
}

// GetRoom returns nil, nil when the room has never been recorded.
func (d *Database) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Database) ListRooms(ctx context.Context, limit, offset int) ([]Room, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms ORDER BY last_opened_at DESC, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// ListEvents returns the journal of one room, newest first
func (d *Database) ListEvents(ctx context.Context, roomID string, limit, offset int) ([]Event, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, room_id, kind, stable_key, name, at
		FROM room_events
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e  Event
			at int64
		)
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Kind, &e.StableKey, &e.Name, &at); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneEventsBefore deletes journal entries older than cutoff. Room counters
// are kept.
func (d *Database) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM room_events WHERE at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var eventCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_events").Scan(&eventCount); err != nil {
		return nil, err
	}
	stats["event_count"] = eventCount

	var joins, clears sql.NullInt64
	if err := d.db.QueryRowContext(ctx, "SELECT SUM(join_count), SUM(clear_count) FROM rooms").Scan(&joins, &clears); err != nil {
		return nil, err
	}
	stats["join_count"] = joins.Int64
	stats["clear_count"] = clears.Int64

	return stats, nil
}
