package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Driver plays turns on a timer. With Autoplay set it also answers pending
// events and staffs buildings between turns, so a run can proceed unattended.
type Driver struct {
	Sim      *Simulation
	Interval time.Duration // pause between turns; zero runs back to back
	Autoplay bool

	// Lock, when set, is held around each turn so other callers (the HTTP
	// API) never see a half-applied turn.
	Lock sync.Locker

	// OnTurn is called after each turn with Lock still held, so it may read
	// the simulation.
	OnTurn func(TurnReport)
}

// NewDriver creates a driver with autoplay enabled.
func NewDriver(sim *Simulation, interval time.Duration) *Driver {
	return &Driver{Sim: sim, Interval: interval, Autoplay: true}
}

// Run plays up to turns turns (all of them until the game ends when turns
// is zero or negative). It stops early on game over or when ctx is done, and
// returns how many turns were played.
func (d *Driver) Run(ctx context.Context, turns int) (int, error) {
	slog.Info("driver started", "turns", turns, "interval", d.Interval, "autoplay", d.Autoplay)
	played := 0
	for turns <= 0 || played < turns {
		if err := ctx.Err(); err != nil {
			slog.Info("driver stopped", "played", played)
			return played, nil
		}
		rep, err := d.Step()
		if errors.Is(err, ErrGameOver) {
			break
		}
		if err != nil {
			return played, err
		}
		played++
		if rep.GameOver != "" {
			break
		}
		if d.Interval > 0 {
			t := time.NewTimer(d.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
				slog.Info("driver stopped", "played", played)
				return played, nil
			case <-t.C:
			}
		}
	}
	slog.Info("driver finished", "played", played, "turn", d.Sim.Turn())
	return played, nil
}

// Step plays a single turn.
func (d *Driver) Step() (TurnReport, error) {
	if d.Lock != nil {
		d.Lock.Lock()
		defer d.Lock.Unlock()
	}
	if d.Autoplay {
		d.answerPending()
		d.staffBuildings()
	}
	rep, err := d.Sim.EndTurn()
	if err == nil && d.OnTurn != nil {
		d.OnTurn(rep)
	}
	return rep, err
}

// answerPending picks the first affordable choice of every pending event.
func (d *Driver) answerPending() {
	for _, ev := range d.Sim.Pending() {
		for i, ch := range ev.Choices {
			if len(ch.Requires) > 0 && !d.Sim.Ledger.HasEnough(ch.Requires) {
				continue
			}
			if _, err := d.Sim.ResolveEvent(ev.ID, i); err != nil {
				slog.Debug("autoplay choice refused", "event", ev.ID, "choice", i, "error", err)
				continue
			}
			break
		}
	}
}

// staffBuildings fills free worker slots in placement order.
func (d *Driver) staffBuildings() {
	for _, b := range d.Sim.Buildings.Buildings() {
		def, ok := d.Sim.Buildings.Definition(b.DefinitionID)
		if !ok || len(def.Production) == 0 {
			continue
		}
		for w := b.Workers; w < def.Workers.Max && d.Sim.IdleVillagers() > 0; w++ {
			if _, err := d.Sim.AssignWorker(b.Pos()); err != nil {
				break
			}
		}
	}
}
