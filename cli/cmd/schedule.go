package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/cli/render"
)

// ScheduleResponse is the schedule command's renderable payload.
type ScheduleResponse struct {
	RootID   string `json:"root_id" yaml:"root_id"`
	Task     string `json:"task" yaml:"task"`
	Topic    string `json:"topic" yaml:"topic"`
}

// ScheduleCommand enqueues a root task invocation and prints its root id.
func ScheduleCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "task", Required: true, Usage: "Task name to schedule"},
		&cli.StringFlag{Name: "args", Usage: "JSON array of positional arguments"},
		&cli.StringFlag{Name: "kwargs", Usage: "JSON object of keyword arguments"},
		TopicFlag,
	}, ReadOnlyFlags()...)

	return &cli.Command{
		Name:  "schedule",
		Usage: "Schedule a root task invocation",
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

			topic := effectiveTopic(c, cfg)
			taskName := c.String("task")
			rootID, err := client.Schedule(c.Context, topic, taskName, args, kwargs)
			if err != nil {
				return err
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(ScheduleResponse{RootID: rootID, Task: taskName, Topic: topic})
		},
	}
}
