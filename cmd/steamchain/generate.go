package main

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"steamchain/internal/cache"
	"steamchain/internal/llm"
	"steamchain/internal/renderer"
	"steamchain/internal/storage"
)

// GenerateCmd completes one or more prompts.
type GenerateCmd struct {
	Prompts []string `arg:"" help:"Prompts to complete"`
	Stop    []string `help:"Stop sequences"`
	Cache   bool     `help:"Reuse completions cached in the workspace (also set by cache = true in [llm])"`
}

// Run executes the generate command.
func (c *GenerateCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	model, err := llm.New(e.client, llm.Settings{
		Kind:      e.cfg.LLM.Kind,
		Arguments: e.cfg.LLM.Arguments,
		Usage:     storage.UsageLedger{},
	})
	if err != nil {
		return err
	}

	useCache := c.Cache
	if o, ok := model.(*llm.OpenAI); ok && o.Options().Cache {
		useCache = true
	}
	var caller llms.Model = model
	if useCache {
		id, ok := model.(cache.Identified)
		if !ok {
			return fmt.Errorf("model kind %q does not support caching", e.cfg.LLM.Kind)
		}
		caller, err = cache.New(e.client).WithLogger(e.log).Wrap(ctx, id)
		if err != nil {
			return err
		}
	}

	var completions [][]string
	err = stage("Generating", func() (string, error) {
		// Uncached completions go out in batches.
		if batched, ok := model.(*llm.OpenAI); ok && !useCache {
			res, err := batched.Generate(ctx, c.Prompts, c.Stop)
			if err != nil {
				return "", err
			}
			for _, gens := range res.Generations {
				var texts []string
				for _, g := range gens {
					texts = append(texts, g.Text)
				}
				completions = append(completions, texts)
			}
			return fmt.Sprintf("%d tokens", res.TokenUsage["total_tokens"]), nil
		}

		for _, p := range c.Prompts {
			text, err := llms.GenerateFromSinglePrompt(ctx, caller, p, llms.WithStopWords(c.Stop))
			if err != nil {
				return "", err
			}
			completions = append(completions, []string{text})
		}
		return fmt.Sprintf("%d prompts", len(c.Prompts)), nil
	})
	if err != nil {
		return err
	}
	return cli.print(renderer.Completions(c.Prompts, completions))
}
