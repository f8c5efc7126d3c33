package config

import "time"

// Config represents a brrr.yaml configuration file. All values are
// optional and act as defaults for the CLI's schedule/worker/read/watch
// commands. CLI flags always override config values.
type Config struct {
	Topic      string       `yaml:"topic"`
	SpawnLimit int64        `yaml:"spawn_limit"`
	Store      BackendConfig `yaml:"store"`
	Queue      BackendConfig `yaml:"queue"`
	Cache      BackendConfig `yaml:"cache"`
	Adapter    AdapterConfig `yaml:"adapter"`
}

// BackendConfig selects one of the store/queue/cache backend kinds
// (`memory`, `redis`, `dynamodb`, `s3`, `socket`) and its connection
// parameters. Not every field applies to every Kind; unused fields are
// simply ignored by the backend that doesn't need them.
type BackendConfig struct {
	// Kind selects the backend implementation: "memory" (default),
	// "redis", "dynamodb", "s3" (store only), "socket" (queue only).
	Kind string `yaml:"kind"`

	URL        string `yaml:"url"`         // redis
	Table      string `yaml:"table"`       // dynamodb
	Bucket     string `yaml:"bucket"`      // s3
	Prefix     string `yaml:"prefix"`      // s3
	Region     string `yaml:"region"`      // dynamodb, s3
	Endpoint   string `yaml:"endpoint"`    // s3 (e.g. localstack); dynamodb does not read it
	Address    string `yaml:"address"`     // socket (queue)

	Timeout Duration `yaml:"timeout,omitempty"`
}

// AdapterConfig holds completion-notification adapter defaults.
type AdapterConfig struct {
	// Kind selects the adapter implementation: "" (disabled, default),
	// "webhook", "redis".
	Kind    string            `yaml:"kind"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
