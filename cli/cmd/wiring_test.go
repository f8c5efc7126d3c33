package cmd

import (
	"testing"

	"github.com/brrr-dev/brrr/cli/config"
)

func TestParseJSONArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"array", `[1, "two", true]`, 3, false},
		{"not an array", `{"a":1}`, 0, true},
		{"malformed", `[1,`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJSONArgs(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseJSONArgs(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err == nil && len(got) != tt.want {
				t.Errorf("parseJSONArgs(%q) = %d items, want %d", tt.raw, len(got), tt.want)
			}
		})
	}
}

func TestParseJSONKwargs(t *testing.T) {
	got, err := parseJSONKwargs(`{"x": 1, "y": "z"}`)
	if err != nil {
		t.Fatalf("parseJSONKwargs failed: %v", err)
	}
	if got["x"] != float64(1) || got["y"] != "z" {
		t.Errorf("parseJSONKwargs returned unexpected map: %#v", got)
	}

	if _, err := parseJSONKwargs("not json"); err == nil {
		t.Fatal("expected error for malformed kwargs JSON")
	}
}

func TestEffectiveTopic(t *testing.T) {
	cfg := &config.Config{Topic: "from-config"}
	if got := effectiveTopicFallback(cfg); got != "from-config" {
		t.Errorf("effectiveTopicFallback = %q, want %q", got, "from-config")
	}

	empty := &config.Config{}
	if got := effectiveTopicFallback(empty); got != "default" {
		t.Errorf("effectiveTopicFallback with no topic = %q, want %q", got, "default")
	}
}
