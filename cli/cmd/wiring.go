package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/brrr-dev/brrr/brrrlog"
	"github.com/brrr-dev/brrr/cli/config"
	"github.com/brrr-dev/brrr/codec/msgpack"
	"github.com/brrr-dev/brrr/engine"
	"github.com/brrr-dev/brrr/examples/tasks"
)

// loadConfig reads the file named by --config, or an empty (all-memory,
// all-default) Config if the flag was omitted.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// effectiveTopic resolves --topic, falling back to the config file's
// topic, and finally "default".
func effectiveTopic(c *cli.Context, cfg *config.Config) string {
	if t := c.String("topic"); t != "" {
		return t
	}
	return effectiveTopicFallback(cfg)
}

// effectiveTopicFallback is effectiveTopic's config-only half, split out
// so it's testable without constructing a *cli.Context.
func effectiveTopicFallback(cfg *config.Config) string {
	if cfg.Topic != "" {
		return cfg.Topic
	}
	return "default"
}

// buildClient wires an engine.Client from cfg's Store/Queue/Cache backend
// selections and the CLI's compiled-in examples/tasks registry. Every
// brrr command that touches the engine (schedule, worker, read, watch)
// goes through this one constructor so they agree on backend wiring and
// default codec. logger is passed through to the engine, which
// uses it for the worker loop and memory's pending-returns CAS loops; a
// nil logger is replaced by brrrlog.Nop().
func buildClient(ctx context.Context, cfg *config.Config, logger *brrrlog.Logger) (*engine.Client, error) {
	st, err := cfg.Store.BuildStore(ctx)
	if err != nil {
		return nil, err
	}
	q, err := cfg.Queue.BuildQueue(ctx)
	if err != nil {
		return nil, err
	}
	ca, err := cfg.Cache.BuildCache(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewClient(engine.Config{
		Store:      st,
		Queue:      q,
		Cache:      ca,
		Codec:      msgpack.New(),
		Registry:   tasks.Registry(),
		SpawnLimit: cfg.SpawnLimit,
		Logger:     logger,
	})
}

// parseJSONArgs parses --args' raw JSON text into a positional args slice.
// An empty string is a valid "no arguments", not an error.
func parseJSONArgs(raw string) ([]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid --args JSON (want a JSON array): %w", err)
	}
	return args, nil
}

// parseJSONKwargs parses --kwargs' raw JSON text into a keyword-argument map.
func parseJSONKwargs(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var kwargs map[string]any
	if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
		return nil, fmt.Errorf("invalid --kwargs JSON (want a JSON object): %w", err)
	}
	return kwargs, nil
}
