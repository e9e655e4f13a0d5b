package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsSections(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, FileName)
	content := `
[platform]
api_key=FILE_KEY
workspace=my-workspace
timeout=30

[llm]
kind=GPT
temperature=0.2
max_tokens=128
model_kwargs.logprobs=2

[chat]
model=gpt-4
moderate_output=false

[index]
name=docs

[log]
level=debug
`
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STEAMCHAIN_CONFIG", "")
	t.Setenv("STEAMCHAIN_API_KEY", "")

	cwd, _ := os.Getwd()
	_ = os.Chdir(dir)
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Platform.APIKey != "FILE_KEY" || cfg.Platform.Workspace != "my-workspace" || cfg.Platform.Timeout != 30 {
		t.Fatalf("unexpected platform config: %+v", cfg.Platform)
	}
	if cfg.Platform.APIBase != "https://api.steamship.com/api/v1" {
		t.Fatalf("expected default api base, got %q", cfg.Platform.APIBase)
	}
	if cfg.LLM.Kind != "gpt" {
		t.Fatalf("expected gpt kind, got %q", cfg.LLM.Kind)
	}
	if len(cfg.LLM.Arguments) != 3 || cfg.LLM.Arguments["model_kwargs.logprobs"] != "2" {
		t.Fatalf("unexpected llm arguments: %v", cfg.LLM.Arguments)
	}
	if cfg.Chat.Model != "gpt-4" || cfg.Chat.ModerateOutput || cfg.Chat.Temperature != 0.7 {
		t.Fatalf("unexpected chat config: %+v", cfg.Chat)
	}
	if cfg.Index.Name != "docs" || cfg.Index.EmbeddingModel != "text-embedding-ada-002" {
		t.Fatalf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.LogLevel != "debug" || cfg.Path != FileName {
		t.Fatalf("unexpected log level %q or path %q", cfg.LogLevel, cfg.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.ini")
	if err := os.WriteFile(cfgPath, []byte("[platform]\napi_key=FILE_KEY\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STEAMCHAIN_CONFIG", cfgPath)
	t.Setenv("STEAMCHAIN_API_KEY", "ENV_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform.APIKey != "ENV_KEY" || cfg.Path != cfgPath {
		t.Fatalf("expected env overrides, got %+v from %q", cfg.Platform, cfg.Path)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("STEAMCHAIN_CONFIG", "")
	t.Setenv("STEAMCHAIN_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	cwd, _ := os.Getwd()
	_ = os.Chdir(t.TempDir())
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != "" || cfg.LLM.Kind != "openai" || len(cfg.LLM.Arguments) != 0 || !cfg.Chat.ModerateOutput {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Index.Name != "steamchain" {
		t.Fatalf("unexpected default index name: %q", cfg.Index.Name)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("STEAMCHAIN_CONFIG", filepath.Join(t.TempDir(), "missing.ini"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
