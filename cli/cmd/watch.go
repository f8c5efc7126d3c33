package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/cli/render"
	"github.com/brrr-dev/brrr/cli/tui"
	"github.com/brrr-dev/brrr/store"
)

// WatchCommand is Read with --wait always on, plus an optional --tui mode
// showing a live spinner while the call graph resolves (cli/tui.RunWatch).
func WatchCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "task", Required: true, Usage: "Task name to watch"},
		&cli.StringFlag{Name: "args", Usage: "JSON array of positional arguments"},
		&cli.StringFlag{Name: "kwargs", Usage: "JSON object of keyword arguments"},
		&cli.StringFlag{Name: "root", Usage: "Root id to display (informational only)"},
	}, ReadOnlyFlags()...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Watch a task until its result resolves",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			args, err := parseJSONArgs(c.String("args"))
			if err != nil {
				return err
			}
			kwargs, err := parseJSONKwargs(c.String("kwargs"))
			if err != nil {
				return err
			}

			client, err := buildClient(c.Context, cfg, brrrlog.New())
			if err != nil {
				return err
			}
			taskName := c.String("task")

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}

			if c.Bool("tui") {
				params := &tui.WatchParams{
					RootID:   c.String("root"),
					TaskName: taskName,
					Args:     args,
					Interval: 500 * time.Millisecond,
					Poll: func(ctx context.Context) (any, bool, error) {
						v, err := client.Read(ctx, taskName, args, kwargs)
						if err != nil {
							if errors.Is(err, store.ErrNotFound) {
								return nil, false, nil
							}
							return nil, false, err
						}
						return v, true, nil
					},
				}
				return r.RenderTUI("watch", params)
			}

			value, err := client.Watch(c.Context, taskName, args, kwargs)
			if err != nil {
				return err
			}
			return r.Render(ReadResponse{Task: taskName, Value: value})
		},
	}
}
