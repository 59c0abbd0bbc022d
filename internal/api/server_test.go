package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/config"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/engine"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/persistence"
	"github.com/talgya/fjordheim/internal/world"
)

const testKey = "secret"

func newTestServer(t *testing.T, withDB bool) *Server {
	t.Helper()
	cat, err := content.Default()
	require.NoError(t, err)

	bal := config.DefaultBalance()
	bal.EventCheckChance = 0
	bal.CreatureSpawnChance = 0
	bal.StartingLayout = nil

	m, err := world.FromRows(
		"gggggggg",
		"gggggggg",
		"gggggggg",
		"gggggggg",
		"wwwwwwww",
	)
	require.NoError(t, err)

	sim, err := engine.New(engine.Options{
		Catalog: cat, Balance: bal, Map: m,
		RNG: entropy.NewSeeded(7), Bus: bus.New(), Name: "Testvik",
	})
	require.NoError(t, err)
	sim.SetClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) })
	require.NoError(t, sim.NewGame())

	s := &Server{Sim: sim, Slot: "autosave", AdminKey: testKey, CORSOrigins: []string{"https://village.example"}}
	if withDB {
		db, err := persistence.Open(filepath.Join(t.TempDir(), "village.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s.DB = db
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if method == http.MethodPost {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type commandResult struct {
	Result        json.RawMessage `json:"result"`
	Notifications []bus.Channel   `json:"notifications"`
}

func decodeCommand(t *testing.T, rr *httptest.ResponseRecorder) commandResult {
	t.Helper()
	var out commandResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, false)
	rr := do(t, s.Handler(), http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var st statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, "Testvik", st.Name)
	assert.Equal(t, 1, st.Turn)
	assert.Equal(t, "village", st.Era)
	assert.Equal(t, 40.0, st.Resources["food"])
	assert.Equal(t, 5, st.IdleVillagers)
	assert.False(t, st.GameOver)
}

func TestCommandAuth(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/turn", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	for _, header := range []string{"Bearer wrong", "Bearer secre", "secret"} {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/turn", nil)
		req.Header.Set("Authorization", header)
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
	}

	s.AdminKey = ""
	rr = do(t, s.Handler(), http.MethodPost, "/api/v1/turn", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 1, s.Sim.Turn())
}

func TestBuildAndStaff(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"building": "farm", "x": 1, "y": 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeCommand(t, rr)
	assert.Contains(t, res.Notifications, bus.BuildingPlaced)
	assert.Contains(t, res.Notifications, bus.ResourcesUpdated)
	assert.Equal(t, 15.0, s.Sim.Ledger.Get("wood"))

	rr = do(t, h, http.MethodPost, "/api/v1/workers", map[string]any{"x": 1, "y": 1, "delta": 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 4, s.Sim.IdleVillagers())

	rr = do(t, h, http.MethodPost, "/api/v1/workers", map[string]any{"x": 1, "y": 1, "delta": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestPlacementMode(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"x": 1, "y": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/build/select", map[string]string{"building": "farm"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeCommand(t, rr)
	assert.Contains(t, res.Notifications, bus.BuildingPlacementStarted)
	assert.JSONEq(t, `{"building":"farm","name":"Farm"}`, string(res.Result))

	rr = do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"x": 1, "y": 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 15.0, s.Sim.Ledger.Get("wood"))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/build/select", map[string]string{"building": "farm"}).Code)
	rr = do(t, h, http.MethodPost, "/api/v1/build/cancel", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeCommand(t, rr).Notifications, bus.BuildingPlacementCancelled)

	rr = do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"x": 2, "y": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, 15.0, s.Sim.Ledger.Get("wood"))

	rr = do(t, h, http.MethodPost, "/api/v1/build/select", map[string]string{"building": "castle"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommandErrors(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"building": "castle", "x": 1, "y": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["kind"])

	rr = do(t, h, http.MethodPost, "/api/v1/build", map[string]any{"building": "dock", "x": 1, "y": 4})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/event", map[string]any{"event": "nope", "choice": 0})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upgrade", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+testKey)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEndTurn(t *testing.T) {
	s := newTestServer(t, false)
	var reports []engine.TurnReport
	s.OnTurn = func(rep engine.TurnReport) { reports = append(reports, rep) }

	rr := do(t, s.Handler(), http.MethodPost, "/api/v1/turn", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rep engine.TurnReport
	require.NoError(t, json.Unmarshal(decodeCommand(t, rr).Result, &rep))
	assert.Equal(t, 2, rep.Turn)
	assert.Equal(t, 5.0, rep.Consumed)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, s.Sim.Turn())
}

func TestDialogueFlow(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/api/v1/dialogue", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/dialogue/start", map[string]string{"dialogue": "gnome_encounter"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeCommand(t, rr).Notifications, bus.DialogueStart)

	rr = do(t, h, http.MethodGet, "/api/v1/dialogue", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var v struct {
		NodeID  string `json:"nodeId"`
		Speaker string `json:"speaker"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Equal(t, "hello", v.NodeID)
	assert.Equal(t, "Frost Gnome", v.Speaker)

	rr = do(t, h, http.MethodPost, "/api/v1/dialogue/choice", map[string]int{"choice": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"ended":true}`, string(decodeCommand(t, rr).Result))
	assert.False(t, s.Sim.Dialogue.Active())
}

func TestPersistenceEndpoints(t *testing.T) {
	h := newTestServer(t, false).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/history", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/save", nil).Code)

	s := newTestServer(t, true)
	h = s.Handler()

	rr := do(t, h, http.MethodPost, "/api/v1/load", map[string]string{"slot": "manual"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/save", map[string]string{"slot": "manual"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeCommand(t, rr).Notifications, bus.GameSaved)

	_, err := s.Sim.EndTurn()
	require.NoError(t, err)
	require.Equal(t, 2, s.Sim.Turn())

	rr = do(t, h, http.MethodPost, "/api/v1/load", map[string]string{"slot": "manual"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, s.Sim.Turn())

	rr = do(t, h, http.MethodGet, "/api/v1/saves", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var saves []persistence.SaveInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saves))
	require.Len(t, saves, 1)
	assert.Equal(t, "manual", saves[0].Slot)
}

func TestLoadCorruptSlot(t *testing.T) {
	s := newTestServer(t, true)
	h := s.Handler()

	snap := s.Sim.Snapshot()
	snap.Pending = []string{"no_such_event"}
	require.NoError(t, s.DB.SaveSnapshot("broken", snap))

	_, err := s.Sim.EndTurn()
	require.NoError(t, err)
	require.Equal(t, 2, s.Sim.Turn())

	rr := do(t, h, http.MethodPost, "/api/v1/load", map[string]string{"slot": "broken"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "corrupt_save", body["kind"])
	assert.Equal(t, 1, s.Sim.Turn())
}

func TestNewGameClearsHistory(t *testing.T) {
	s := newTestServer(t, true)
	s.OnTurn = func(rep engine.TurnReport) {
		require.NoError(t, s.DB.RecordTurn(s.Slot, rep, nil))
	}
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/turn", nil).Code)
	rows, err := s.DB.TurnHistory(s.Slot, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rr := do(t, h, http.MethodPost, "/api/v1/new", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeCommand(t, rr).Notifications, bus.GameStarted)
	assert.Equal(t, 1, s.Sim.Turn())

	rows, err = s.DB.TurnHistory(s.Slot, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, false).Handler()

	for origin, allowed := range map[string]bool{
		"http://localhost:5173":   true,
		"https://village.example": true,
		"https://evil.example":    false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		if allowed {
			assert.Equal(t, origin, rr.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}
}
