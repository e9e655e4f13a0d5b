package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/lmittmann/tint"

	"steamchain/internal/config"
	"steamchain/internal/platform"
)

// CLI is the root command structure for steamchain.
type CLI struct {
	Config  string `short:"c" help:"Path to config file" type:"path" env:"STEAMCHAIN_CONFIG"`
	Verbose bool   `short:"v" help:"Log debug output"`
	Plain   bool   `help:"Print markdown without terminal styling"`

	Init     InitCmd     `cmd:"" help:"Write a starter config file"`
	Generate GenerateCmd `cmd:"" help:"Complete prompts with the configured model"`
	Chat     ChatCmd     `cmd:"" help:"Talk to the chat model, remembering the session"`
	Ask      AskCmd      `cmd:"" help:"Answer a question with an agent that can search"`
	Search   SearchCmd   `cmd:"" help:"Search the web through the search plugin"`
	Index    IndexCmd    `cmd:"" help:"Manage the embedding index"`
	Load     LoadCmd     `cmd:"" help:"Import files, sites, repositories or videos into the workspace"`
	Split    SplitCmd    `cmd:"" help:"Split a Python file into definition chunks"`
	Usage    UsageCmd    `cmd:"" help:"Show recorded token usage"`
}

var stdout io.Writer = os.Stdout

// env is the state shared by commands that talk to the platform.
type env struct {
	cfg    *config.Config
	client *platform.Client
	log    *slog.Logger
}

// loadConfig reads the config file and points the local ledger at its
// storage path.
func (c *CLI) loadConfig() (*config.Config, error) {
	if c.Config != "" {
		os.Setenv("STEAMCHAIN_CONFIG", c.Config)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StoragePath != "" {
		os.Setenv("STEAMCHAIN_DB_PATH", cfg.StoragePath)
	}
	return cfg, nil
}

func (c *CLI) logger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    c.Plain,
	}))
	slog.SetDefault(logger)
	return logger
}

// env loads the configuration and connects to the platform.
func (c *CLI) env() (*env, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := c.logger(cfg)
	if cfg.Platform.APIKey == "" {
		return nil, fmt.Errorf("no API key: set STEAMCHAIN_API_KEY or api_key in [platform]")
	}

	opts := []platform.Option{
		platform.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Platform.Timeout) * time.Second}),
	}
	if cfg.Platform.Workspace != "" {
		opts = append(opts, platform.WithWorkspace(cfg.Platform.Workspace))
	}
	client, err := platform.NewClient(cfg.Platform.APIBase, cfg.Platform.APIKey, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("platform client ready", "base", cfg.Platform.APIBase, "workspace", cfg.Platform.Workspace, "config", cfg.Path)
	return &env{cfg: cfg, client: client, log: logger}, nil
}

// print writes markdown to stdout, styled for the terminal unless --plain.
func (c *CLI) print(md string) error {
	if c.Plain {
		_, err := io.WriteString(stdout, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runContext is cancelled on interrupt.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
