// Command villagesim runs the village survival simulation behind an HTTP API,
// optionally playing turns on its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/fjordheim/internal/api"
	"github.com/talgya/fjordheim/internal/bus"
	"github.com/talgya/fjordheim/internal/config"
	"github.com/talgya/fjordheim/internal/content"
	"github.com/talgya/fjordheim/internal/engine"
	"github.com/talgya/fjordheim/internal/entropy"
	"github.com/talgya/fjordheim/internal/persistence"
	"github.com/talgya/fjordheim/internal/resources"
	"github.com/talgya/fjordheim/internal/simerr"
	"github.com/talgya/fjordheim/internal/world"
)

func main() {
	if err := run(); err != nil {
		slog.Error("villagesim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt := cfg.Runtime
	slog.SetDefault(newLogger(os.Stdout, rt.SlogLevel()))

	// ── Content ───────────────────────────────────────────────────────
	cat, err := loadCatalog(rt.ContentDir)
	if err != nil {
		return err
	}
	slog.Info("content loaded",
		"resources", len(cat.Resources),
		"buildings", len(cat.Buildings),
		"events", len(cat.Story)+len(cat.Random)+len(cat.Seasonal),
		"creatures", len(cat.Creatures),
		"dialogues", len(cat.Dialogues),
	)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(rt.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(rt.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", rt.DBPath)

	// ── Map (always regenerated, deterministic from seed) ─────────────
	seed := resolveSeed(rt.Seed, db)
	gen := cfg.Balance.Map
	gen.Seed = seed
	m := world.Generate(gen)
	for t, n := range world.TerrainCounts(m) {
		slog.Debug("terrain", "type", t.Name(), "count", n)
	}
	name := world.VillageName(rand.New(rand.NewSource(seed + 1)))

	// ── Simulation ────────────────────────────────────────────────────
	b := bus.New()
	b.SubscribeAll(func(msg bus.Message) {
		slog.Debug("notification", "channel", msg.Channel)
	})
	sim, err := engine.New(engine.Options{
		Catalog: cat,
		Balance: cfg.Balance,
		Map:     m,
		RNG:     entropy.NewSeeded(seed),
		Bus:     b,
		Name:    name,
	})
	if err != nil {
		return err
	}
	sim.AutoSave = func(snap engine.Snapshot) error {
		return db.SaveSnapshot(rt.SaveSlot, snap)
	}
	if err := resume(sim, db, rt.SaveSlot); err != nil {
		return err
	}

	recordTurn := func(rep engine.TurnReport) {
		if err := db.RecordTurn(rt.SaveSlot, rep, sim.LogSince(rep.Turn)); err != nil {
			slog.Error("record turn failed", "turn", rep.Turn, "error", err)
		}
		slog.Info(summary(rep))
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if rt.AdminKey == "" {
		slog.Warn("VILLAGESIM_ADMIN_KEY not set, command endpoints are disabled")
	}
	server := &api.Server{
		Sim:         sim,
		DB:          db,
		Slot:        rt.SaveSlot,
		Port:        rt.Port,
		AdminKey:    rt.AdminKey,
		CORSOrigins: rt.CORSOrigins,
		OnTurn:      recordTurn,
	}
	var srv *http.Server
	if rt.Port > 0 {
		srv = server.Start()
		defer api.Shutdown(srv)
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", rt.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n%s stands on a %dx%d fjord, %s turn, %s villagers.\n",
		name, m.Width, m.Height,
		humanize.Ordinal(sim.Turn()),
		humanize.Comma(int64(sim.Ledger.Get(resources.Population))),
	)

	// ── Autoplay ──────────────────────────────────────────────────────
	if rt.AutoplayTurns != 0 {
		driver := engine.NewDriver(sim, rt.AutoplayInterval)
		driver.Lock = server.Locker()
		driver.OnTurn = recordTurn
		played, err := driver.Run(ctx, rt.AutoplayTurns)
		if err != nil {
			return err
		}
		fmt.Printf("Autoplay finished after %s turns.\n", humanize.Comma(int64(played)))
	}

	if srv != nil && ctx.Err() == nil {
		fmt.Println("Serving... (Ctrl+C to stop)")
		<-ctx.Done()
	}
	slog.Info("shutting down")

	// Final save.
	lock := server.Locker()
	lock.Lock()
	snap := sim.Snapshot()
	lock.Unlock()
	if err := db.SaveSnapshot(rt.SaveSlot, snap); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Village saved.")
	return nil
}

// newLogger writes text to terminals and JSON everywhere else.
func newLogger(w *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func loadCatalog(dir string) (*content.Catalog, error) {
	if dir == "" {
		return content.Default()
	}
	slog.Info("loading content", "dir", dir)
	return content.Load(os.DirFS(dir))
}

// resolveSeed prefers the configured seed, then the one stored with the
// database, and draws a fresh one otherwise. The result is stored so a restart
// regenerates the same map.
func resolveSeed(configured int64, db *persistence.DB) int64 {
	seed := configured
	if seed == 0 {
		if v, err := db.GetMeta("seed"); err == nil {
			if s, err := strconv.ParseInt(v, 10, 64); err == nil {
				seed = s
			}
		}
	}
	if seed == 0 {
		seed = entropy.NewSeed()
	}
	if err := db.SaveMeta("seed", strconv.FormatInt(seed, 10)); err != nil {
		slog.Warn("could not store seed", "error", err)
	}
	slog.Info("world seed", "seed", seed)
	return seed
}

// resume loads the save in slot, or starts a new game when there is none.
func resume(sim *engine.Simulation, db *persistence.DB, slot string) error {
	data, err := db.LoadSnapshot(slot)
	switch {
	case errors.Is(err, persistence.ErrNoSave):
		slog.Info("no save found, starting a new game", "slot", slot)
		return sim.NewGame()
	case err != nil:
		slog.Error("could not read save, starting a new game", "slot", slot, "error", err)
		return sim.NewGame()
	}
	if err := sim.Load(data); err != nil {
		if !errors.Is(err, simerr.ErrCorruptSave) {
			return err
		}
		// Load has already fallen back to a new game.
		slog.Warn("save discarded", "slot", slot, "error", err)
		if err := db.ClearHistory(slot); err != nil {
			slog.Warn("clear history failed", "slot", slot, "error", err)
		}
		return nil
	}
	slog.Info("save loaded", "slot", slot, "turn", sim.Turn())
	return nil
}

func summary(rep engine.TurnReport) string {
	s := fmt.Sprintf("%s turn (%s): %s food, %s villagers",
		humanize.Ordinal(rep.Turn), rep.Season,
		humanize.Comma(int64(rep.Resources[resources.Food])),
		humanize.Comma(int64(rep.Resources[resources.Population])),
	)
	if rep.Deaths > 0 {
		s += fmt.Sprintf(", %d starved", rep.Deaths)
	}
	if rep.Births > 0 {
		s += fmt.Sprintf(", %d born", rep.Births)
	}
	if rep.GameOver != "" {
		s += ". " + rep.GameOver
	}
	return s
}
