package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manpreetbhatti/scribble/internal/canvas"
	"github.com/manpreetbhatti/scribble/internal/db"
	"github.com/manpreetbhatti/scribble/internal/export"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/room"
)

// ConnCounter reports the number of live transport connections.
type ConnCounter interface {
	ClientCount() int
}

type API struct {
	registry *room.Registry
	conns    ConnCounter
	database *db.Database
	logger   *slog.Logger
}

// New builds the HTTP API. database may be nil, which disables the ledger
// endpoints.
func New(registry *room.Registry, conns ConnCounter, database *db.Database, logger *slog.Logger) *API {
	return &API{
		registry: registry,
		conns:    conns,
		database: database,
		logger:   logger.With("component", "api"),
	}
}

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.HealthHandler)
	mux.HandleFunc("GET /api/stats", a.StatsHandler)
	mux.HandleFunc("GET /api/rooms", a.ListRoomsHandler)
	mux.HandleFunc("GET /api/rooms/{id}", a.GetRoomHandler)
	mux.HandleFunc("GET /api/rooms/{id}/events", a.RoomEventsHandler)
	mux.HandleFunc("GET /api/rooms/{id}/export.pdf", a.ExportHandler)
}

// Routes returns the API alone, wrapped in CORS.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return CORS(mux)
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("encoding JSON response", "error", err)
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	summaries := a.registry.Summaries()
	online, segments := 0, 0
	for _, s := range summaries {
		online += s.Online
		segments += s.Segments
	}

	stats := map[string]interface{}{
		"live_rooms":          len(summaries),
		"online_participants": online,
		"live_segments":       segments,
		"active_clients":      a.conns.ClientCount(),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats(r.Context())
		if err != nil {
			a.logger.Error("ledger stats failed", "error", err)
		} else {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_events"] = dbStats["event_count"]
			stats["total_joins"] = dbStats["join_count"]
			stats["total_clears"] = dbStats["clear_count"]
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": a.registry.Summaries(),
	})
}

type RoomResponse struct {
	ID      string            `json:"id"`
	Live    bool              `json:"live"`
	Summary *room.Summary     `json:"summary,omitempty"`
	Members []presence.Member `json:"members,omitempty"`
	History *db.Room          `json:"history,omitempty"`
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp := RoomResponse{ID: id}

	if rm, ok := a.registry.Get(id); ok {
		if sum, members, live := rm.Detail(); live {
			resp.Live, resp.Summary, resp.Members = true, &sum, members
		}
	}

	if a.database != nil {
		history, err := a.database.GetRoom(r.Context(), id)
		if err != nil {
			a.logger.Error("ledger lookup failed", "room_id", id, "error", err)
			a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
			return
		}
		resp.History = history
	}

	if !resp.Live && resp.History == nil {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	a.jsonResponse(w, http.StatusOK, resp)
}

func (a *API) RoomEventsHandler(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Activity ledger disabled")
		return
	}

	id := r.PathValue("id")
	limit, offset := pagination(r)

	evts, err := a.database.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		a.logger.Error("ledger events failed", "room_id", id, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"room_id": id,
		"events":  evts,
		"limit":   limit,
		"offset":  offset,
	})
}

func (a *API) ExportHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rm, ok := a.registry.Get(id)
	if !ok {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	var segments []canvas.Segment
	if !rm.Do(func(st *room.State) { segments = st.Log.Flatten() }) {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	opts := export.DefaultOptions()
	opts.Title = id
	var buf bytes.Buffer
	skipped, err := export.WritePDF(&buf, segments, opts)
	if err != nil {
		a.logger.Error("export failed", "room_id", id, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to export room")
		return
	}
	if skipped > 0 {
		a.logger.Warn("export skipped images", "room_id", id, "skipped", skipped)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName(id)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func fileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if name == "" {
		return "canvas"
	}
	return name
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
