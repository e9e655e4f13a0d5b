package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `[platform]
; api_key may also come from STEAMCHAIN_API_KEY
api_key =
api_base = https://api.steamship.com/api/v1
workspace =
timeout = 60

[llm]
; openai (batched completions) or gpt
kind = openai
model_name = text-davinci-003
temperature = 0.7
max_tokens = 256

[chat]
model = gpt-3.5-turbo
temperature = 0.7
moderate_output = true

[index]
embedding_model = text-embedding-ada-002
; handle of the workspace index shared by index and ask
name = steamchain

[storage]
path =

[log]
level = info
`

// InitCmd writes a starter config file.
type InitCmd struct {
	Path  string `arg:"" optional:"" type:"path" help:"Where to write the config (default ~/.steamchain/config.ini)"`
	Force bool   `help:"Overwrite an existing config, keeping a .bak copy"`
}

// Run executes the init command.
func (c *InitCmd) Run(cli *CLI) error {
	target := c.Path
	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		target = filepath.Join(home, ".steamchain", "config.ini")
	}

	if _, err := os.Stat(target); err == nil {
		if !c.Force {
			return fmt.Errorf("%s already exists (use --force to replace it)", target)
		}
		fmt.Fprintf(stderr, "Backing up existing %s to %s.bak\n", target, target)
		if err := os.Rename(target, target+".bak"); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, []byte(configTemplate), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n\nAdd your API key under [platform], then run: steamchain generate \"Hello\"\n", target)
	return nil
}
