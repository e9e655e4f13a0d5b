package main

import (
	"steamchain/internal/renderer"
	"steamchain/internal/storage"
)

// UsageCmd prints the token usage recorded by completion commands.
type UsageCmd struct {
	Clear bool `help:"Delete the recorded usage"`
}

// Run executes the usage command.
func (c *UsageCmd) Run(cli *CLI) error {
	if _, err := cli.loadConfig(); err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	if c.Clear {
		if err := storage.ClearUsage(ctx); err != nil {
			return err
		}
		return cli.print("Usage cleared.\n")
	}
	totals, err := storage.UsageTotals(ctx)
	if err != nil {
		return err
	}
	return cli.print(renderer.Usage(totals))
}
