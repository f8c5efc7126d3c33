package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/cli/render"
)

// Version is the brrr CLI's release version, independent of the commit
// hash ldflags inject into cmd/brrr's build.
const Version = "0.1.0"

// VersionResponse is the version command's renderable payload.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// VersionCommand prints the CLI's version and build commit. commit is
// baked in by cmd/brrr via ldflags; it defaults to "unknown" outside of a
// release build.
func VersionCommand(commit string) *cli.Command {
	if commit == "" {
		commit = "unknown"
	}
	return &cli.Command{
		Name:  "version",
		Usage: "Print the brrr CLI version",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(VersionResponse{Version: Version, Commit: commit})
		},
	}
}
