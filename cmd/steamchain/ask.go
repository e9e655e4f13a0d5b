package main

import (
	"errors"
	"strings"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"

	"steamchain/internal/callbacks"
	"steamchain/internal/llm"
	"steamchain/internal/llm/tools"
	"steamchain/internal/storage"
)

// AskCmd answers a question with a reasoning agent.
type AskCmd struct {
	Question      []string `arg:"" help:"Question to answer"`
	NoSearch      bool     `help:"Do not give the agent web search"`
	CacheSearch   bool     `default:"true" negatable:"" help:"Cache search answers in the workspace"`
	Index         bool     `help:"Let the agent search the embedding index"`
	K             int      `default:"4" help:"Documents returned per index search"`
	MaxIterations int      `default:"5" help:"Agent step limit"`
}

// Run executes the ask command.
func (c *AskCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	toolset := &tools.Toolset{}
	if !c.NoSearch {
		if toolset.Search, err = tools.NewSearch(ctx, e.client, c.CacheSearch); err != nil {
			return err
		}
	}
	if c.Index {
		store, err := openIndex(ctx, e.client, e.cfg.Index)
		if err != nil {
			return err
		}
		toolset.IndexSearch = tools.NewIndexSearch(store, c.K)
	}
	if len(toolset.AsList()) == 0 {
		return errors.New("the agent needs at least one tool")
	}

	model, err := llm.New(e.client, llm.Settings{
		Kind:      e.cfg.LLM.Kind,
		Arguments: e.cfg.LLM.Arguments,
		Usage:     storage.UsageLedger{},
	})
	if err != nil {
		return err
	}

	handler := callbacks.NewLogging(e.log)
	agent := agents.NewOneShotAgent(model, toolset.AsList(), agents.WithCallbacksHandler(handler))
	executor := agents.NewExecutor(agent,
		agents.WithMaxIterations(c.MaxIterations),
		agents.WithCallbacksHandler(handler),
	)

	var answer string
	err = stage("Reasoning", func() (string, error) {
		answer, err = chains.Run(ctx, executor, strings.Join(c.Question, " "))
		return "", err
	})
	if err != nil {
		return err
	}
	return cli.print(strings.TrimSpace(answer) + "\n")
}
