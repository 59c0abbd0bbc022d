package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/talgya/fjordheim/internal/buildings"
	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/creatures"
	"github.com/talgya/fjordheim/internal/events"
	"github.com/talgya/fjordheim/internal/seasons"
	"github.com/talgya/fjordheim/internal/simerr"
)

// SnapshotVersion is written into every snapshot and required on load.
const SnapshotVersion = "1.0"

// Snapshot is the complete persisted state of a run. The map is not part of
// it; it is regenerated from the seed.
type Snapshot struct {
	Version   string               `json:"version"`
	Timestamp int64                `json:"timestamp"` // unix milliseconds
	Resources map[string]float64   `json:"resources"`
	Buildings []buildings.Building `json:"buildings"`
	Events    events.State         `json:"events"`
	Season    seasons.State        `json:"season"`
	Creatures []creatures.Creature `json:"creatures"`
	Pending   []string             `json:"pending,omitempty"`
	GameOver  *GameOverState       `json:"gameOver,omitempty"`
}

// GameOverState records why a saved run ended.
type GameOverState struct {
	Reason string `json:"reason"`
}

// Snapshot captures the current state.
func (s *Simulation) Snapshot() Snapshot {
	snap := Snapshot{
		Version:   SnapshotVersion,
		Timestamp: s.now().UnixMilli(),
		Resources: s.Ledger.Snapshot(),
		Buildings: s.Buildings.SaveState(),
		Events:    s.Events.SaveState(),
		Season:    s.Seasons.Save(),
		Creatures: s.Creatures.SaveState(),
	}
	for _, ev := range s.pending {
		snap.Pending = append(snap.Pending, ev.ID)
	}
	if s.over {
		snap.GameOver = &GameOverState{Reason: s.reason}
	}
	return snap
}

// Encode serializes the current state.
func (s *Simulation) Encode() ([]byte, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Load decodes data and restores every sub-system from it. A snapshot that
// cannot be decoded or re-attached leaves a fresh game in place and returns a
// CorruptSave error. It is refused while a turn or command is running.
func (s *Simulation) Load(data []byte) error {
	done, err := s.hold()
	if err != nil {
		return err
	}
	defer done()

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return s.recover(simerr.Corrupt("load snapshot", err))
	}
	if err := s.restore(snap); err != nil {
		return s.recover(err)
	}
	return nil
}

// restore re-attaches a decoded snapshot.
func (s *Simulation) restore(snap Snapshot) error {
	const op = "restore snapshot"
	if snap.Version != SnapshotVersion {
		return simerr.Corrupt(op, fmt.Errorf("unsupported version %q", snap.Version))
	}
	if snap.Resources == nil {
		return simerr.Corrupt(op, fmt.Errorf("missing resources"))
	}
	pending := make([]content.EventDef, 0, len(snap.Pending))
	for _, id := range snap.Pending {
		ev, ok := s.Events.Event(id)
		if !ok {
			return simerr.Corrupt(op, simerr.NotFound(op, "event", id))
		}
		pending = append(pending, ev)
	}
	if err := s.Buildings.LoadState(snap.Buildings); err != nil {
		return simerr.Corrupt(op, err)
	}
	if err := s.Creatures.LoadState(snap.Creatures); err != nil {
		return simerr.Corrupt(op, err)
	}
	if err := s.Seasons.Load(snap.Season); err != nil {
		return simerr.Corrupt(op, err)
	}
	s.Dialogue.End()
	s.Events.LoadState(snap.Events)
	s.Ledger.Restore(snap.Resources)
	s.pending = pending
	s.talkingTo = ""
	s.over, s.reason = false, ""
	if snap.GameOver != nil {
		s.over, s.reason = true, snap.GameOver.Reason
	}
	s.Log = nil
	s.record(s.Ledger.Turn(), "game", "save loaded")

	slog.Info("game loaded",
		"turn", s.Ledger.Turn(),
		"season", s.Seasons.CurrentID(),
		"buildings", s.Buildings.Count(),
		"creatures", len(snap.Creatures),
		"pending", len(pending),
	)
	s.Bus.Publish(bus.GameLoaded, snap)
	return nil
}

func (s *Simulation) recover(err error) error {
	slog.Error("corrupt save, starting a new game", "error", err)
	s.reset()
	return err
}
