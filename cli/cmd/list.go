package cmd

import (
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/cli/render"
	"github.com/brrr-dev/brrr/examples/tasks"
)

// TaskEntry is one row of `brrr list`'s output.
type TaskEntry struct {
	Name string `json:"name" yaml:"name"`
}

// ListCommand prints the names of every task handler compiled into the
// CLI binary (examples/tasks.Registry, see cli/cmd/wiring.go).
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered task names",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			names := tasks.Registry().Names()
			sort.Strings(names)

			entries := make([]TaskEntry, len(names))
			for i, n := range names {
				entries[i] = TaskEntry{Name: n}
			}

			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(entries)
		},
	}
}
