// Package cmd provides the brrr CLI's commands: schedule, worker, read,
// watch, list, version.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands (read, watch, list, version).
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only the watch command acts on it; the other commands ignore it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (watch only)",
	}

	// ConfigFlag points at a brrr.yaml config file. CLI flags always
	// override values it supplies.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a brrr.yaml config file",
	}

	// TopicFlag overrides the config file's default topic.
	TopicFlag = &cli.StringFlag{
		Name:    "topic",
		Aliases: []string{"t"},
		Usage:   "Queue topic (overrides config)",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// Includes --tui, which every command using these flags accepts and only
// watch acts on.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		ConfigFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// Alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}
