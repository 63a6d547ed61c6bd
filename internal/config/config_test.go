package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStepRequiredDefaultsToTrue(t *testing.T) {
	var steps []StepConfig
	data := []byte(`
- id: age
  prompt: How old are you?
  kind: choice
  choices:
    - {label: "18+", value: "18+"}
- id: notes
  prompt: Anything else?
  required: false
`)
	if err := yaml.Unmarshal(data, &steps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if !steps[0].Required {
		t.Fatalf("expected first step to default to required")
	}
	if steps[1].Required {
		t.Fatalf("expected second step to be optional")
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
log_level: debug
ticket:
  trained_weight: 0.5
application:
  log_channel_id: "111"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("APPLICATION_LOG_CHANNEL", "222")
	t.Setenv("DISCORD_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
	if cfg.Ticket.TrainedWeight != 0.5 {
		t.Fatalf("expected trained weight 0.5, got %v", cfg.Ticket.TrainedWeight)
	}
	if cfg.Application.LogChannelID != "222" {
		t.Fatalf("expected env override, got %q", cfg.Application.LogChannelID)
	}
	if len(cfg.Application.Steps) != 11 {
		t.Fatalf("expected default application steps, got %d", len(cfg.Application.Steps))
	}
}

func TestLoadForRunRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := LoadForRun(); err == nil {
		t.Fatalf("expected missing token error")
	}

	t.Setenv("DISCORD_TOKEN", "token")
	cfg, err := LoadForRun()
	if err != nil {
		t.Fatalf("load for run: %v", err)
	}
	if cfg.DiscordToken != "token" {
		t.Fatalf("expected token from env, got %q", cfg.DiscordToken)
	}
}

func TestPortFeedsHealthAddr(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("HEALTH_ADDR", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Health.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Health.Addr)
	}
}
