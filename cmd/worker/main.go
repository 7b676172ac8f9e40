package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/Keyring-Network/groundchat/internal/config"
	"github.com/Keyring-Network/groundchat/internal/store"
	"github.com/Keyring-Network/groundchat/internal/store/backend"
	"github.com/Keyring-Network/groundchat/internal/workflows"
)

// sweepDisabled turns the cron sweep off; the worker then terminates any
// scheduled sweep and exits.
const sweepDisabled = "off"

type sweepScheduler interface {
	StartSweeper(ctx context.Context) error
	StopSweeper(ctx context.Context) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	openBackend  = func(cfg config.Config) (store.Backend, error) {
		return backend.Open(backend.Options{
			Kind:        cfg.StoreBackend,
			PostgresURL: cfg.PostgresURL,
			SQLitePath:  cfg.SQLitePath,
			BoltPath:    cfg.BoltPath,
		})
	}
	newActivities = workflows.NewActivities
	newScheduler  = func(c client.Client, taskQueue string, schedule string) sweepScheduler {
		return workflows.NewService(c, taskQueue, schedule)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !backend.Shared(cfg.StoreBackend) {
		return fmt.Errorf("worker needs a shared store backend (postgres or sqlite), got %q", cfg.StoreBackend)
	}

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	scheduler := newScheduler(temporalClient, cfg.TemporalTaskQueue, cfg.SweepCron)
	if strings.EqualFold(strings.TrimSpace(cfg.SweepCron), sweepDisabled) {
		var notFound *serviceerror.NotFound
		if err := scheduler.StopSweeper(context.Background()); err != nil && !errors.As(err, &notFound) {
			return fmt.Errorf("stop sweep: %w", err)
		}
		log.Printf("groundchat sweep disabled; scheduled sweep stopped")
		return nil
	}

	kv, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SweepWorkflow)
	w.RegisterActivity(newActivities(kv))

	if err := scheduler.StartSweeper(context.Background()); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	log.Printf("groundchat worker started (queue=%s, schedule=%q)", cfg.TemporalTaskQueue, cfg.SweepCron)
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
