package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level, _ := cmd.Flags().GetString("log-level")
	cfg, log, err := loadConfig(level)
	if err != nil {
		return err
	}

	log.Info("starting worker",
		"env", cfg.App.Environment,
		"storage", cfg.Database.Storage,
		"event_bus", cfg.EventBus.Transport,
		"calculator", cfg.Progress.Calculator,
		"deployment_mode", cfg.LearningPath.DeploymentMode,
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if a.redisBus != nil {
		if err := a.redisBus.Start(gctx); err != nil {
			return err
		}
	}

	if cfg.Scheduler.Enabled {
		if err := a.sched.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return a.sched.Stop()
		})
	} else {
		log.Info("scheduler disabled")
	}

	log.Info("worker running")
	<-gctx.Done()
	log.Info("shutting down", "timeout", cfg.App.ShutdownTimeout)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		return errors.New("shutdown timed out")
	}

	log.Info("worker stopped")
	return nil
}
