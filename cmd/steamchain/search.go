package main

import (
	"fmt"
	"strings"

	"steamchain/internal/llm/tools"
)

// SearchCmd runs one web search through the search plugin.
type SearchCmd struct {
	Query   []string `arg:"" help:"Search query"`
	NoCache bool     `help:"Skip the workspace answer cache"`
}

// Run executes the search command.
func (c *SearchCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	search, err := tools.NewSearch(ctx, e.client, !c.NoCache)
	if err != nil {
		return err
	}
	query := strings.Join(c.Query, " ")
	answer, err := search.Call(ctx, query)
	if err != nil {
		return err
	}
	return cli.print(fmt.Sprintf("```\n%s\n```\n\n%s\n", query, answer))
}
