// Command wastesim runs the e-waste recycling simulation: collectors, sorters,
// and recyclers moving waste through a three-stage pipeline on a grid.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/wastesim/internal/api"
	"github.com/talgya/wastesim/internal/config"
	"github.com/talgya/wastesim/internal/engine"
	"github.com/talgya/wastesim/internal/persistence"
)

func main() {
	configPath := flag.String("config", os.Getenv("WASTESIM_CONFIG"), "path to a YAML config file")
	headless := flag.Bool("headless", false, "run to completion without the HTTP API or pacing, then print a summary")
	printLog := flag.Bool("print-log", false, "print the full journal when the run ends")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("E-Waste Recycling Simulation",
		"grid", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"collectors", cfg.Collectors,
		"sorters", cfg.Sorters,
		"recyclers", cfg.Recyclers,
		"max_steps", cfg.MaxSteps,
	)

	// ── Model ─────────────────────────────────────────────────────────
	model, err := engine.NewModel(cfg.Params(),
		engine.WithSeed(cfg.Seed),
		engine.WithInitialWaste(cfg.InitialWaste),
	)
	if err != nil {
		slog.Error("failed to build model", "error", err)
		os.Exit(1)
	}
	slog.Info("model ready", "run_id", model.RunID, "seed", model.Seed, "waste", model.TotalWaste())

	// ── Run recording ─────────────────────────────────────────────────
	var db *persistence.DB
	var recorder *persistence.Recorder
	if cfg.DBPath != "" {
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.BeginRun(model); err != nil {
			slog.Error("failed to start run recording", "error", err)
			os.Exit(1)
		}
		recorder = &persistence.Recorder{DB: db, Journal: model.Journal()}
		slog.Info("database opened", "path", cfg.DBPath)
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(model)
	eng.Interval = cfg.TickInterval
	if *headless {
		eng.Interval = 0
	}

	var hub *api.Hub
	if !*headless {
		hub = api.NewHub()
	}

	eng.OnStep = func(snap engine.Snapshot) {
		if recorder != nil {
			recorder.OnStep(snap)
		}
		if hub != nil {
			hub.Broadcast(snap)
		}
	}
	eng.OnStop = func(snap engine.Snapshot) {
		finishRun(cfg, model, db, recorder, snap)
		if hub != nil {
			hub.Broadcast(snap)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if !*headless {
		apiServer = &api.Server{
			Model: model,
			Eng:   eng,
			DB:    db,
			Hub:   hub,
			Port:  cfg.Port,
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
		close(interrupted)
	}()

	eng.Run()
	printSummary(model, *printLog)

	if apiServer != nil {
		// Keep serving the final state until asked to exit.
		select {
		case <-interrupted:
		default:
			fmt.Println("Run finished. API still serving the final state (Ctrl+C to exit).")
			<-interrupted
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}
}

// finishRun flushes the recorder, stores the final status, and archives the journal.
func finishRun(cfg config.Config, model *engine.Model, db *persistence.DB, rec *persistence.Recorder, snap engine.Snapshot) {
	if rec != nil {
		rec.Flush()
	}
	if db != nil {
		if err := db.SaveMeta("final_step", strconv.Itoa(snap.Step)); err != nil {
			slog.Error("save final step failed", "error", err)
		}
		if err := db.SaveMeta("state", engine.StateName(model.State())); err != nil {
			slog.Error("save state failed", "error", err)
		}
	}
	if cfg.ArchiveDir != "" {
		path, err := persistence.ArchiveJournal(cfg.ArchiveDir, model.RunID, model.Journal())
		if err != nil {
			slog.Error("journal archive failed", "error", err)
			return
		}
		slog.Info("journal archived", "path", path, "records", model.Journal().Len())
	}
}

func printSummary(model *engine.Model, withLog bool) {
	if withLog {
		for _, line := range model.Log() {
			fmt.Println(line)
		}
	}

	mt := model.Metrics()
	fmt.Printf("\nRun %s: %s after %d steps.\n", model.RunID, engine.StateName(model.State()), mt.Step)
	fmt.Printf("  %-16s %s\n", engine.SeriesLabels[0]+":", humanize.Comma(int64(mt.Collected)))
	fmt.Printf("  %-16s %s\n", engine.SeriesLabels[1]+":", humanize.Comma(int64(mt.Sorted)))
	fmt.Printf("  %-16s %s\n", engine.SeriesLabels[2]+":", humanize.Comma(int64(mt.Recycled)))
	fmt.Printf("  %-16s %s\n", engine.SeriesLabels[3]+":", humanize.Comma(int64(mt.Remaining)))
	fmt.Printf("  %-16s %s\n", "Introduced:", humanize.Comma(int64(model.Introduced())))
	if total := model.Introduced(); total > 0 {
		fmt.Printf("  %-16s %s%%\n", "Recycled share:", humanize.FtoaWithDigits(100*float64(mt.Recycled)/float64(total), 1))
	}
}
