package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.RoundBudget != 50 {
		t.Errorf("RoundBudget = %d, want 50", cfg.RoundBudget)
	}
	if cfg.Execution.LastNMessages != 3 || cfg.Execution.WorkDir != "workspace" || !cfg.Execution.UseDocker {
		t.Errorf("unexpected execution defaults: %+v", cfg.Execution)
	}
	if cfg.HumanInput.Timeout != 60*time.Second || cfg.HumanInput.MaxAttempts != 3 {
		t.Errorf("unexpected human input defaults: %+v", cfg.HumanInput)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groupchat.yaml")
	yaml := `
round_budget: 12
speaker_selection: round_robin
model:
  model: gpt-4
  timeout: 30s
execution:
  use_docker: false
  work_dir: /tmp/work
store:
  backend: redis
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GROUPCHAT_ROUND_BUDGET", "20")
	t.Setenv("GROUPCHAT_ALLOWED_MODELS", "gpt-4, gpt-4o")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RoundBudget != 20 {
		t.Errorf("env should override yaml: RoundBudget = %d", cfg.RoundBudget)
	}
	if cfg.SpeakerSelection != SpeakerRoundRobin {
		t.Errorf("SpeakerSelection = %q", cfg.SpeakerSelection)
	}
	if cfg.Model.Model != "gpt-4" || cfg.Model.Timeout != 30*time.Second {
		t.Errorf("model section not loaded: %+v", cfg.Model)
	}
	if cfg.Model.MaxTokens != 1024 {
		t.Errorf("defaults should survive partial yaml, MaxTokens = %d", cfg.Model.MaxTokens)
	}
	if cfg.Execution.UseDocker || cfg.Execution.WorkDir != "/tmp/work" {
		t.Errorf("execution section not loaded: %+v", cfg.Execution)
	}
	if len(cfg.AllowedModels) != 2 || cfg.AllowedModels[1] != "gpt-4o" {
		t.Errorf("AllowedModels = %v", cfg.AllowedModels)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("speaker_selection: random\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, errorskg.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Store.Postgres.DSN()
	want := "host=localhost port=5432 user=postgres password= dbname=ai_groupchat sslmode=disable"
	if dsn != want {
		t.Errorf("DSN() = %q, want %q", dsn, want)
	}
}
