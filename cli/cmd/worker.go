package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/engine"
)

// WorkerCommand runs a Worker.Loop on one topic until SIGINT/SIGTERM or a
// fatal engine error.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a worker loop on a topic",
		Flags: []cli.Flag{
			TopicFlag,
			ConfigFlag,
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			logger := brrrlog.New()
			sugar := logger.Sugar()

			client, err := buildClient(c.Context, cfg, logger)
			if err != nil {
				return err
			}

			adapter, err := cfg.Adapter.BuildAdapter(c.Context)
			if err != nil {
				return err
			}
			if adapter != nil {
				defer func() { _ = adapter.Close() }()
			}

			w := engine.NewWorker(client, effectiveTopic(c, cfg))
			w.Adapter = adapter

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			sugar.Infof("brrr worker: listening on topic %q", w.Topic)
			if err := w.Loop(ctx); err != nil && ctx.Err() == nil {
				sugar.Errorf("worker loop on topic %q exited: %v", w.Topic, err)
				return fmt.Errorf("worker loop: %w", err)
			}
			return nil
		},
	}
}
