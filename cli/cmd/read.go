package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/cli/render"
)

// ReadResponse is the read command's renderable payload.
type ReadResponse struct {
	Task  string `json:"task" yaml:"task"`
	Value any    `json:"value" yaml:"value"`
}

// ReadCommand reads a task's memoized value. Plain (non --wait) reads
// return store.ErrNotFound as a normal command error if the call hasn't
// resolved yet; --wait blocks (via Client.Watch) until it does.
func ReadCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "task", Required: true, Usage: "Task name to read"},
		&cli.StringFlag{Name: "args", Usage: "JSON array of positional arguments"},
		&cli.StringFlag{Name: "kwargs", Usage: "JSON object of keyword arguments"},
		&cli.BoolFlag{Name: "wait", Usage: "Block until the value resolves instead of erroring"},
	}, ReadOnlyFlags()...)

	return &cli.Command{
		Name:  "read",
		Usage: "Read a memoized task result",
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
			var value any
			if c.Bool("wait") {
				value, err = client.Watch(c.Context, taskName, args, kwargs)
			} else {
				value, err = client.Read(c.Context, taskName, args, kwargs)
			}
			if err != nil {
				return err
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(ReadResponse{Task: taskName, Value: value})
		},
	}
}
