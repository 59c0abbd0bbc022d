// Package api exposes the simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints are player commands and require a bearer token.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/dialogue"
	"github.com/talgya/fjordheim/internal/engine"
	"github.com/talgya/fjordheim/internal/persistence"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

// Server serves the simulation over HTTP. Every request runs under one mutex,
// so at most one command is in flight.
type Server struct {
	Sim         *engine.Simulation
	DB          *persistence.DB // nil disables save, load and history
	Slot        string          // default save slot
	Port        int
	AdminKey    string   // Bearer token for POST endpoints. Empty = POST disabled.
	CORSOrigins []string // extra allowed origins besides localhost dev servers

	// OnTurn runs after a successful end-turn command, under the lock.
	OnTurn func(engine.TurnReport)

	mu sync.Mutex
}

// Locker returns the lock guarding the simulation, for sharing with a driver.
func (s *Server) Locker() sync.Locker {
	return &s.mu
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	turnLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/map", s.handleMap)
	mux.HandleFunc("GET /api/v1/buildings", s.handleBuildings)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/dialogue", s.handleDialogue)
	mux.HandleFunc("GET /api/v1/creatures", s.handleCreatures)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/saves", s.handleSaves)

	// Commands (POST, require bearer token).
	mux.HandleFunc("POST /api/v1/turn", s.adminOnly(RateLimitMiddleware(turnLimiter, s.handleEndTurn)))
	mux.HandleFunc("POST /api/v1/build", s.adminOnly(s.handleBuild))
	mux.HandleFunc("POST /api/v1/build/select", s.adminOnly(s.handleBuildSelect))
	mux.HandleFunc("POST /api/v1/build/cancel", s.adminOnly(s.handleBuildCancel))
	mux.HandleFunc("POST /api/v1/workers", s.adminOnly(s.handleWorkers))
	mux.HandleFunc("POST /api/v1/upgrade", s.adminOnly(s.handleUpgrade))
	mux.HandleFunc("POST /api/v1/event", s.adminOnly(s.handleEventChoice))
	mux.HandleFunc("POST /api/v1/dialogue/start", s.adminOnly(s.handleDialogueStart))
	mux.HandleFunc("POST /api/v1/dialogue/choice", s.adminOnly(s.handleDialogueChoice))
	mux.HandleFunc("POST /api/v1/dialogue/combat", s.adminOnly(s.handleDialogueCombat))
	mux.HandleFunc("POST /api/v1/creature/interact", s.adminOnly(s.handleInteract))
	mux.HandleFunc("POST /api/v1/creature/trade", s.adminOnly(s.handleTrade))
	mux.HandleFunc("POST /api/v1/creature/fight", s.adminOnly(s.handleFight))
	mux.HandleFunc("POST /api/v1/save", s.adminOnly(s.handleSave))
	mux.HandleFunc("POST /api/v1/load", s.adminOnly(s.handleLoad))
	mux.HandleFunc("POST /api/v1/new", s.adminOnly(s.handleNewGame))

	return s.corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. Shut it down through the
// returned server.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Shutdown stops srv, waiting up to five seconds for requests in flight.
func Shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range s.CORSOrigins {
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a command handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "commands disabled (no VILLAGESIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// commandResponse wraps a command result with the notifications it produced.
type commandResponse struct {
	Result        any           `json:"result,omitempty"`
	Notifications []bus.Channel `json:"notifications"`
}

// command runs fn under the lock, recording what it published.
func (s *Server) command(w http.ResponseWriter, fn func() (any, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *bus.Recorder
	if s.Sim.Bus != nil {
		rec = bus.Record(s.Sim.Bus)
	}
	result, err := fn()
	notes := []bus.Channel{}
	if rec != nil {
		rec.Stop()
		notes = rec.Channels()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, commandResponse{Result: result, Notifications: notes})
}

// read runs fn under the lock and writes its result.
func (s *Server) read(w http.ResponseWriter, fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, fn())
}

// --- reads ---

type statusResponse struct {
	Name           string             `json:"name"`
	Turn           int                `json:"turn"`
	Season         string             `json:"season"`
	SeasonProgress float64            `json:"seasonProgress"`
	Era            string             `json:"era"`
	Resources      map[string]float64 `json:"resources"`
	IdleVillagers  int                `json:"idleVillagers"`
	Strength       float64            `json:"strength"`
	Pending        int                `json:"pending"`
	DialogueActive bool               `json:"dialogueActive"`
	GameOver       bool               `json:"gameOver"`
	Reason         string             `json:"reason,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() any {
		over, reason := s.Sim.IsOver()
		return statusResponse{
			Name:           s.Sim.Name,
			Turn:           s.Sim.Turn(),
			Season:         s.Sim.Seasons.CurrentID(),
			SeasonProgress: s.Sim.Seasons.Progress(),
			Era:            s.Sim.Ledger.Era().String(),
			Resources:      s.Sim.Ledger.Snapshot(),
			IdleVillagers:  s.Sim.IdleVillagers(),
			Strength:       s.Sim.Strength(),
			Pending:        len(s.Sim.Pending()),
			DialogueActive: s.Sim.Dialogue.Active(),
			GameOver:       over,
			Reason:         reason,
		}
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() any {
		return map[string]any{
			"width":     s.Sim.Map.Width,
			"height":    s.Sim.Map.Height,
			"rows":      s.Sim.Map.Rows(),
			"buildings": s.Sim.Buildings.Buildings(),
			"creatures": s.Sim.Creatures.Creatures(),
		}
	})
}

type blueprint struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Era        string             `json:"era"`
	Cost       map[string]float64 `json:"cost,omitempty"`
	Production map[string]float64 `json:"production,omitempty"`
	Affordable bool               `json:"affordable"`
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() any {
		avail := s.Sim.AvailableBuildings()
		out := make([]blueprint, 0, len(avail))
		for _, d := range avail {
			out = append(out, blueprint{
				ID:         d.ID,
				Name:       d.Name,
				Era:        d.Era.String(),
				Cost:       d.Cost,
				Production: d.Production,
				Affordable: s.Sim.Ledger.HasEnough(d.Cost),
			})
		}
		return map[string]any{
			"placed":    s.Sim.Buildings.Buildings(),
			"available": out,
		}
	})
}

type eventView struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Choices     []dialogue.ChoiceView `json:"choices"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	s.read(w, func() any {
		pending := make([]eventView, 0)
		for _, ev := range s.Sim.Pending() {
			pending = append(pending, viewEvent(ev, s.Sim.Ledger))
		}
		log := s.Sim.Log
		start := 0
		if len(log) > limit {
			start = len(log) - limit
		}
		return map[string]any{
			"pending": pending,
			"recent":  log[start:],
		}
	})
}

func viewEvent(ev content.EventDef, ledger *resources.Ledger) eventView {
	node := &content.DialogueNode{Choices: ev.Choices}
	return eventView{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Choices:     dialogue.AvailableChoices(node, ledger),
	}
}

func (s *Server) handleDialogue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Sim.Dialogue.View(s.Sim.Ledger)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleCreatures(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() any { return s.Sim.Creatures.Creatures() })
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	rows, err := s.DB.TurnHistory(s.slot(r.URL.Query().Get("slot")), limit)
	if err != nil {
		slog.Error("turn history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleSaves(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	saves, err := s.DB.ListSaves()
	if err != nil {
		slog.Error("list saves failed", "error", err)
		http.Error(w, "saves unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, saves)
}

// --- commands ---

func (s *Server) handleEndTurn(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (any, error) {
		rep, err := s.Sim.EndTurn()
		if err != nil {
			return nil, err
		}
		if s.OnTurn != nil {
			s.OnTurn(rep)
		}
		return rep, nil
	})
}

type coordRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c coordRequest) coord() world.Coord {
	return world.Coord{X: c.X, Y: c.Y}
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Building string `json:"building"` // empty places the selected blueprint
		coordRequest
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.PlaceBuilding(req.coord(), req.Building)
	})
}

func (s *Server) handleBuildSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Building string `json:"building"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		if err := s.Sim.SelectBuilding(req.Building); err != nil {
			return nil, err
		}
		def, _ := s.Sim.Buildings.Definition(req.Building)
		return map[string]string{"building": def.ID, "name": def.Name}, nil
	})
}

func (s *Server) handleBuildCancel(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (any, error) {
		return nil, s.Sim.CancelPlacement()
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		coordRequest
		Delta int `json:"delta"` // +1 assigns, -1 removes
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		switch req.Delta {
		case 1:
			return s.Sim.AssignWorker(req.coord())
		case -1:
			return s.Sim.RemoveWorker(req.coord())
		default:
			return nil, simerr.Rejected("change workers", "delta must be 1 or -1, got %d", req.Delta)
		}
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req coordRequest
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.Upgrade(req.coord())
	})
}

func (s *Server) handleEventChoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event  string `json:"event"`
		Choice int    `json:"choice"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.ResolveEvent(req.Event, req.Choice)
	})
}

func (s *Server) handleDialogueStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dialogue string `json:"dialogue"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.StartDialogue(req.Dialogue)
	})
}

func (s *Server) handleDialogueChoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice int `json:"choice"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		v, active, err := s.Sim.SelectDialogueChoice(req.Choice)
		if err != nil {
			return nil, err
		}
		if !active {
			return map[string]bool{"ended": true}, nil
		}
		return v, nil
	})
}

func (s *Server) handleDialogueCombat(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (any, error) {
		return s.Sim.ResolveDialogueCombat()
	})
}

type creatureRequest struct {
	Creature string `json:"creature"`
	Offer    int    `json:"offer"`
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req creatureRequest
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.InteractWithCreature(req.Creature)
	})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req creatureRequest
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return nil, s.Sim.Trade(req.Creature, req.Offer)
	})
}

func (s *Server) handleFight(w http.ResponseWriter, r *http.Request) {
	var req creatureRequest
	if !decode(w, r, &req) {
		return
	}
	s.command(w, func() (any, error) {
		return s.Sim.Fight(req.Creature)
	})
}

type slotRequest struct {
	Slot string `json:"slot"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var req slotRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	slot := s.slot(req.Slot)
	s.command(w, func() (any, error) {
		snap := s.Sim.Snapshot()
		if err := s.DB.SaveSnapshot(slot, snap); err != nil {
			return nil, err
		}
		s.Sim.Bus.Publish(bus.GameSaved, engine.Saved{Turn: s.Sim.Turn()})
		return persistence.SaveInfo{Slot: slot, Turn: s.Sim.Turn(), SavedAt: snap.Timestamp}, nil
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var req slotRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	slot := s.slot(req.Slot)
	s.command(w, func() (any, error) {
		data, err := s.DB.LoadSnapshot(slot)
		if err != nil {
			return nil, err
		}
		if err := s.Sim.Load(data); err != nil {
			return nil, err
		}
		return map[string]any{"slot": slot, "turn": s.Sim.Turn()}, nil
	})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (any, error) {
		if err := s.Sim.NewGame(); err != nil {
			return nil, err
		}
		if s.DB != nil {
			if err := s.DB.ClearHistory(s.Slot); err != nil {
				slog.Warn("clear history failed", "slot", s.Slot, "error", err)
			}
		}
		return map[string]int{"turn": s.Sim.Turn()}, nil
	})
}

func (s *Server) slot(requested string) string {
	if requested != "" {
		return requested
	}
	return s.Slot
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional is decode for commands whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, into)
}

// writeError maps simulation failures to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	// A corrupt save may wrap a NotFound cause, so it is matched first.
	switch {
	case errors.Is(err, engine.ErrGameOver), errors.Is(err, engine.ErrTurnInProgress):
		status = http.StatusConflict
	case errors.Is(err, simerr.ErrCorruptSave), errors.Is(err, simerr.ErrRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, simerr.ErrNotFound), errors.Is(err, persistence.ErrNoSave):
		status = http.StatusNotFound
	default:
		slog.Error("command failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(simerr.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
