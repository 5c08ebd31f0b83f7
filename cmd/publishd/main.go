package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/config"
	"github.com/tendant/simple-publish/pkg/simplepublish/scan"
)

// WorkerConfig holds the loop knobs for the headless publisher.
type WorkerConfig struct {
	TickInterval   time.Duration `env:"TICK_INTERVAL" env-default:"30s"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" env-default:"5m"`
	StuckAfter     time.Duration `env:"STUCK_AFTER" env-default:"10m"`
	Retention      time.Duration `env:"RETENTION" env-default:"0s"`
	Concurrency    int           `env:"BATCH_CONCURRENCY" env-default:"3"`
	InterWaveDelay time.Duration `env:"INTER_WAVE_DELAY" env-default:"0s"`
}

func main() {
	var workerCfg WorkerConfig
	if err := cleanenv.ReadEnv(&workerCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Environment)

	svc, store, err := cfg.Build(context.Background())
	if err != nil {
		slog.Error("Failed to create service", "err", err)
		os.Exit(1)
	}
	scanner := scan.New(store)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down worker...")
		cancel()
	}()

	batchOpts := simplepublish.BatchOptions{
		Concurrency:    workerCfg.Concurrency,
		InterWaveDelay: workerCfg.InterWaveDelay,
	}
	sweepOpts := scan.SweepOptions{
		StuckAfter: workerCfg.StuckAfter,
		Retention:  workerCfg.Retention,
	}

	slog.Info("Worker starting",
		"tick_interval", workerCfg.TickInterval,
		"sweep_interval", workerCfg.SweepInterval,
		"concurrency", workerCfg.Concurrency)

	ticker := time.NewTicker(workerCfg.TickInterval)
	defer ticker.Stop()
	sweeper := time.NewTicker(workerCfg.SweepInterval)
	defer sweeper.Stop()

	runPass(ctx, svc, batchOpts)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Worker exiting")
			return
		case <-ticker.C:
			runPass(ctx, svc, batchOpts)
		case <-sweeper.C:
			runSweep(ctx, scanner, sweepOpts)
		}
	}
}

func runPass(ctx context.Context, svc simplepublish.Service, opts simplepublish.BatchOptions) {
	tick, err := svc.Tick(ctx)
	if err != nil {
		slog.Error("Scheduler pass failed", "err", err)
		return
	}
	if tick.Promoted > 0 {
		slog.Info("Scheduler pass completed", "checked", tick.Checked, "promoted", tick.Promoted, "held", tick.Held)
	}

	res, err := svc.PublishAllReady(ctx, opts)
	if err != nil {
		slog.Error("Batch publish failed", "err", err)
		return
	}
	if res.Total > 0 {
		slog.Info("Batch publish completed",
			"total", res.Total,
			"succeeded", res.Succeeded,
			"failed", res.Failed,
			"requeued", res.Requeued,
			"waves", res.Waves)
	}
}

func runSweep(ctx context.Context, scanner *scan.Scanner, opts scan.SweepOptions) {
	res, err := scanner.Sweep(ctx, opts)
	if err != nil {
		slog.Error("Maintenance sweep failed", "err", err)
		return
	}
	if res.Requeued > 0 || res.Purged > 0 {
		slog.Info("Maintenance sweep completed", "scanned", res.Scanned, "requeued", res.Requeued, "purged", res.Purged)
	}
}

func setupLogger(environment string) {
	if environment == "production" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}
}
